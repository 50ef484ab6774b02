package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oggyb/moviematch/internal/app/apptest"
	"github.com/oggyb/moviematch/internal/server/servertest"
	sessionsvc "github.com/oggyb/moviematch/internal/service/session"
)

//
// Test helpers
//

func method(name string) string {
	return "/" + sessionsvc.ServiceName + "/" + name
}

func setupClient(t *testing.T) *grpc.ClientConn {
	t.Helper()
	return servertest.Dial(t, sessionsvc.NewRegistrar(apptest.New(t)))
}

func call[Resp any](t *testing.T, conn *grpc.ClientConn, name string, req any) *Resp {
	t.Helper()
	resp, err := servertest.Invoke[Resp](context.Background(), conn, method(name), req)
	require.NoError(t, err, name)
	return resp
}

func code(t *testing.T, conn *grpc.ClientConn, name string, req any) codes.Code {
	t.Helper()
	_, err := servertest.Invoke[sessionsvc.SessionResponse](context.Background(), conn, method(name), req)
	return status.Code(err)
}

// pair creates a session for alice and joins bob over the wire.
func pair(t *testing.T, conn *grpc.ClientConn) string {
	t.Helper()
	created := call[sessionsvc.SessionResponse](t, conn, "CreateSession", &sessionsvc.CreateSessionRequest{MemberID: "alice"})
	call[sessionsvc.SessionResponse](t, conn, "JoinSession", &sessionsvc.JoinSessionRequest{Code: created.Session.Code, MemberID: "bob"})
	return created.Session.Code
}

// events pumps a subscription stream into a channel.
func events(t *testing.T, conn *grpc.ClientConn, sessionCode string) <-chan sessionsvc.SessionEvent {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cs, err := servertest.Stream(ctx, conn, method("SubscribeSession"), &sessionsvc.SubscribeSessionRequest{Code: sessionCode})
	require.NoError(t, err)

	out := make(chan sessionsvc.SessionEvent, 16)
	go func() {
		defer close(out)
		for {
			var ev sessionsvc.SessionEvent
			if err := cs.RecvMsg(&ev); err != nil {
				return
			}
			out <- ev
		}
	}()
	return out
}

// await returns the first event satisfying ok.
func await(t *testing.T, ch <-chan sessionsvc.SessionEvent, ok func(sessionsvc.SessionEvent) bool) sessionsvc.SessionEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, open := <-ch:
			require.True(t, open, "stream closed")
			if ok(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("no matching session event")
		}
	}
}

//
// Tests
//

func TestCreateAndJoinSession(t *testing.T) {
	conn := setupClient(t)

	created := call[sessionsvc.SessionResponse](t, conn, "CreateSession", &sessionsvc.CreateSessionRequest{MemberID: "alice"})
	require.NotNil(t, created.Session)
	assert.Len(t, created.Session.Code, 6)
	assert.Equal(t, []string{"alice"}, created.Session.Members)
	assert.True(t, created.Session.UseSmartMatching)

	joined := call[sessionsvc.SessionResponse](t, conn, "JoinSession", &sessionsvc.JoinSessionRequest{Code: created.Session.Code, MemberID: "bob"})
	assert.Equal(t, []string{"alice", "bob"}, joined.Session.Members)

	tests := []struct {
		name string
		req  *sessionsvc.JoinSessionRequest
		want codes.Code
	}{
		{"Full", &sessionsvc.JoinSessionRequest{Code: created.Session.Code, MemberID: "carol"}, codes.FailedPrecondition},
		{"Malformed code", &sessionsvc.JoinSessionRequest{Code: "12ab", MemberID: "carol"}, codes.InvalidArgument},
		{"Missing member", &sessionsvc.JoinSessionRequest{Code: created.Session.Code}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, code(t, conn, "JoinSession", tt.req))
		})
	}

	t.Run("Unknown code", func(t *testing.T) {
		unknown := "000000"
		if created.Session.Code == unknown {
			unknown = "000001"
		}
		assert.Equal(t, codes.NotFound, code(t, conn, "GetSession", &sessionsvc.GetSessionRequest{Code: unknown}))
	})
}

func TestSwipesProduceMatchOnStream(t *testing.T) {
	conn := setupClient(t)
	sessionCode := pair(t, conn)
	stream := events(t, conn, sessionCode)

	initial := await(t, stream, func(sessionsvc.SessionEvent) bool { return true })
	require.NotNil(t, initial.Session)
	assert.Len(t, initial.Session.Members, 2)

	first := call[sessionsvc.RecordSwipeResponse](t, conn, "RecordSwipe", &sessionsvc.RecordSwipeRequest{Code: sessionCode, MemberID: "alice", MovieID: 1, Liked: true})
	assert.False(t, first.IsMatch)
	second := call[sessionsvc.RecordSwipeResponse](t, conn, "RecordSwipe", &sessionsvc.RecordSwipeRequest{Code: sessionCode, MemberID: "bob", MovieID: 1, Liked: true})
	assert.True(t, second.IsMatch)
	assert.Equal(t, []int64{1}, second.Session.Matches)

	ev := await(t, stream, func(ev sessionsvc.SessionEvent) bool {
		return ev.Session != nil && len(ev.Session.Matches) == 1
	})
	assert.Equal(t, []int64{1}, ev.Session.ViewedMovies)
	assert.True(t, ev.Session.Swipes[1]["alice"])

	t.Run("Outsider is rejected", func(t *testing.T) {
		assert.Equal(t, codes.FailedPrecondition, code(t, conn, "RecordSwipe",
			&sessionsvc.RecordSwipeRequest{Code: sessionCode, MemberID: "carol", MovieID: 2, Liked: true}))
	})

	t.Run("Movie id is validated", func(t *testing.T) {
		assert.Equal(t, codes.InvalidArgument, code(t, conn, "RecordSwipe",
			&sessionsvc.RecordSwipeRequest{Code: sessionCode, MemberID: "alice"}))
	})
}

func TestSubscribeUnknownSession(t *testing.T) {
	conn := setupClient(t)
	stream := events(t, conn, "999999")

	ev := await(t, stream, func(sessionsvc.SessionEvent) bool { return true })
	assert.Nil(t, ev.Session)
}

func TestBootstrapMatchingAndNextMovies(t *testing.T) {
	conn := setupClient(t)
	sessionCode := pair(t, conn)

	// bob is the follower and gets nothing until alice has bootstrapped
	follower := call[sessionsvc.BootstrapMatchingResponse](t, conn, "BootstrapMatching", &sessionsvc.BootstrapMatchingRequest{Code: sessionCode, MemberID: "bob"})
	assert.False(t, follower.Leader)
	assert.Empty(t, follower.MatchingSessionID)

	pending := call[sessionsvc.NextMoviesResponse](t, conn, "NextMovies", &sessionsvc.NextMoviesRequest{Code: sessionCode, MemberID: "bob", BatchSize: 2})
	assert.False(t, pending.Personalized)
	assert.Len(t, pending.Movies, 2)

	leader := call[sessionsvc.BootstrapMatchingResponse](t, conn, "BootstrapMatching", &sessionsvc.BootstrapMatchingRequest{Code: sessionCode, MemberID: "alice"})
	assert.True(t, leader.Leader)
	require.NotEmpty(t, leader.MatchingSessionID)

	again := call[sessionsvc.BootstrapMatchingResponse](t, conn, "BootstrapMatching", &sessionsvc.BootstrapMatchingRequest{Code: sessionCode, MemberID: "bob"})
	assert.Equal(t, leader.MatchingSessionID, again.MatchingSessionID)

	batch := call[sessionsvc.NextMoviesResponse](t, conn, "NextMovies", &sessionsvc.NextMoviesRequest{Code: sessionCode, MemberID: "alice", BatchSize: 3})
	assert.True(t, batch.Personalized)
	assert.Equal(t, "exploration", string(batch.Stage))
	assert.Len(t, batch.Movies, 3)
	for _, m := range batch.Movies {
		assert.NotEqual(t, int64(4), m.ID, "low rated movie passes the quality filter")
	}

	off := call[sessionsvc.SessionResponse](t, conn, "SetSmartMatching", &sessionsvc.SetSmartMatchingRequest{Code: sessionCode, MemberID: "alice", Enabled: false})
	assert.False(t, off.Session.UseSmartMatching)

	random := call[sessionsvc.NextMoviesResponse](t, conn, "NextMovies", &sessionsvc.NextMoviesRequest{Code: sessionCode, MemberID: "alice", BatchSize: 10})
	assert.False(t, random.Personalized)
	assert.Len(t, random.Movies, 5)
}

func TestGetSwipeHistory(t *testing.T) {
	conn := setupClient(t)
	sessionCode := pair(t, conn)

	for _, id := range []int64{1, 2, 3} {
		call[sessionsvc.RecordSwipeResponse](t, conn, "RecordSwipe", &sessionsvc.RecordSwipeRequest{Code: sessionCode, MemberID: "alice", MovieID: id, Liked: id != 2})
	}

	page := call[sessionsvc.GetSwipeHistoryResponse](t, conn, "GetSwipeHistory", &sessionsvc.GetSwipeHistoryRequest{Code: sessionCode, MemberID: "alice", Limit: 2})
	require.Len(t, page.Events, 2)
	assert.Equal(t, int64(3), page.Events[0].MovieID)
	assert.Equal(t, int64(2), page.Events[1].MovieID)
	assert.False(t, page.Events[1].Liked)
	require.NotEmpty(t, page.NextPageToken)

	rest := call[sessionsvc.GetSwipeHistoryResponse](t, conn, "GetSwipeHistory", &sessionsvc.GetSwipeHistoryRequest{Code: sessionCode, MemberID: "alice", Limit: 2, PageToken: page.NextPageToken})
	require.Len(t, rest.Events, 1)
	assert.Equal(t, int64(1), rest.Events[0].MovieID)
	assert.Empty(t, rest.NextPageToken)

	assert.Equal(t, codes.InvalidArgument, code(t, conn, "GetSwipeHistory",
		&sessionsvc.GetSwipeHistoryRequest{Code: sessionCode, MemberID: "alice", PageToken: "not-a-token"}))
}

func TestLeaveSession(t *testing.T) {
	conn := setupClient(t)
	sessionCode := pair(t, conn)

	left := call[sessionsvc.SessionResponse](t, conn, "LeaveSession", &sessionsvc.LeaveSessionRequest{Code: sessionCode, MemberID: "bob"})
	assert.Equal(t, []string{"alice"}, left.Session.Members)
	assert.True(t, left.Session.Active)

	empty := call[sessionsvc.SessionResponse](t, conn, "LeaveSession", &sessionsvc.LeaveSessionRequest{Code: sessionCode, MemberID: "alice"})
	assert.Empty(t, empty.Session.Members)
	assert.False(t, empty.Session.Active)

	assert.Equal(t, codes.FailedPrecondition, code(t, conn, "JoinSession",
		&sessionsvc.JoinSessionRequest{Code: sessionCode, MemberID: "carol"}))
}
