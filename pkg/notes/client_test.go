package notes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/gobeyondidentity/podnotes/internal/testutil/podserver"
	"github.com/gobeyondidentity/podnotes/pkg/account"
	"github.com/gobeyondidentity/podnotes/pkg/dpop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type podFixture struct {
	pod    *podserver.Server
	client *Client
	tok    *account.AccessToken
}

func newPodFixture(t *testing.T, serverOpts []podserver.Option, opts ...Option) *podFixture {
	t.Helper()

	pod := podserver.New(serverOpts...)
	t.Cleanup(pod.Close)

	auth := account.New(account.Credentials{
		Username:   podserver.Email,
		Password:   podserver.Password,
		AccountURL: pod.AccountURL(),
		PodURL:     pod.PodURL(),
	}, account.WithHTTPClient(pod.Client()), account.WithTokenURL(pod.TokenURL()), account.WithLogger(quietLogger))

	tok, err := auth.Authenticate(context.Background())
	require.NoError(t, err)

	opts = append([]Option{WithHTTPClient(pod.Client()), WithLogger(quietLogger)}, opts...)
	return &podFixture{pod: pod, client: New(pod.PodURL(), opts...), tok: tok}
}

func testNote(id, title, content string) Note {
	return Note{ID: id, Title: title, Subject: content, Content: content, Date: "2024-07-03T10:00:00Z"}
}

func TestCreateThenList(t *testing.T) {
	t.Log("Testing a created note is returned by List with listing metadata")

	f := newPodFixture(t, nil)
	ctx := context.Background()

	require.True(t, f.client.Create(ctx, f.tok, testNote("n1", "First", "hello")))

	doc, ok := f.pod.Document("notes/n1.ttl")
	require.True(t, ok, "document stored at container/id.ttl")
	assert.Contains(t, doc, "hello")

	result, err := f.client.List(ctx, f.tok)
	require.NoError(t, err)
	require.Len(t, result.Notes, 1)
	assert.Empty(t, result.Failed)

	got := result.Notes[0]
	assert.Equal(t, "n1", got.ID)
	assert.Equal(t, "First", got.Title)
	assert.Equal(t, "hello", got.Content)
	require.NotNil(t, got.Modified)
	require.NotNil(t, got.Size)
	assert.Equal(t, int64(len(doc)), *got.Size)
}

func TestCreateTwiceOverwrites(t *testing.T) {
	f := newPodFixture(t, nil)
	ctx := context.Background()

	require.True(t, f.client.Create(ctx, f.tok, testNote("n1", "v1", "first")))
	require.True(t, f.client.Create(ctx, f.tok, testNote("n1", "v2", "second")), "overwrite answers 205")

	result, err := f.client.List(ctx, f.tok)
	require.NoError(t, err)
	require.Len(t, result.Notes, 1)
	assert.Equal(t, "second", result.Notes[0].Content)
	assert.Equal(t, []string{"notes/n1.ttl"}, f.pod.Documents())
}

func TestUpdate(t *testing.T) {
	f := newPodFixture(t, nil)
	ctx := context.Background()

	require.True(t, f.client.Create(ctx, f.tok, testNote("n1", "v1", "first")))
	require.True(t, f.client.Update(ctx, f.tok, testNote("n1", "v2", "changed")))

	got, err := f.client.Get(ctx, f.tok, f.client.ResourceURL("n1"))
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)
	assert.Equal(t, "changed", got.Content)
}

func TestDeleteThenList(t *testing.T) {
	f := newPodFixture(t, nil)
	ctx := context.Background()

	require.True(t, f.client.Create(ctx, f.tok, testNote("keep", "Keep", "a")))
	require.True(t, f.client.Create(ctx, f.tok, testNote("drop", "Drop", "b")))
	require.True(t, f.client.Delete(ctx, f.tok, "drop"))

	result, err := f.client.List(ctx, f.tok)
	require.NoError(t, err)
	require.Len(t, result.Notes, 1)
	assert.Equal(t, "keep", result.Notes[0].ID)
}

func TestDeleteMissing(t *testing.T) {
	f := newPodFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.False(t, f.client.Delete(ctx, f.tok, "ghost"))
	}

	err := f.client.Remove(ctx, f.tok, "ghost")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.ErrorIs(t, err, ErrStatus)
}

func TestDeleteStatusConventions(t *testing.T) {
	tests := []struct {
		name   string
		status int
		accept []int
		want   bool
	}{
		{"css reset content", http.StatusResetContent, nil, true},
		{"generic no content", http.StatusNoContent, nil, true},
		{"plain ok", http.StatusOK, nil, true},
		{"accepted", http.StatusAccepted, nil, true},
		{"narrowed set rejects 204", http.StatusNoContent, []int{http.StatusResetContent}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.accept != nil {
				opts = append(opts, WithDeleteStatuses(tt.accept...))
			}
			f := newPodFixture(t, []podserver.Option{podserver.WithDeleteStatus(tt.status)}, opts...)
			ctx := context.Background()

			require.True(t, f.client.Create(ctx, f.tok, testNote("n1", "t", "c")))
			assert.Equal(t, tt.want, f.client.Delete(ctx, f.tok, "n1"))
		})
	}
}

func TestWriteStatuses(t *testing.T) {
	f := newPodFixture(t, nil, WithWriteStatuses(http.StatusNoContent))

	err := f.client.Put(context.Background(), f.tok, testNote("n1", "t", "c"))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusCreated, statusErr.StatusCode)
}

func TestListKeepsListingOrder(t *testing.T) {
	t.Log("Testing parallel member fetches are returned in container order")

	f := newPodFixture(t, nil, WithConcurrency(3))
	ctx := context.Background()

	var want []string
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("note-%02d", 9-i)
		want = append(want, id)
		require.True(t, f.client.Create(ctx, f.tok, testNote(id, id, "body "+id)))
	}

	result, err := f.client.List(ctx, f.tok)
	require.NoError(t, err)
	var got []string
	for _, n := range result.Notes {
		got = append(got, n.ID)
	}
	assert.Equal(t, want, got)
}

func TestListSkipsFailedMembers(t *testing.T) {
	t.Log("Testing a member answering 404 is skipped and reported")

	f := newPodFixture(t, nil)
	ctx := context.Background()

	require.True(t, f.client.Create(ctx, f.tok, testNote("a", "A", "a")))
	require.True(t, f.client.Create(ctx, f.tok, testNote("b", "B", "b")))
	f.pod.PutDocument("notes/broken.ttl", `<> <http://purl.org/dc/elements/1.1/title> "oops`)
	f.pod.FailGet("notes/b.ttl", http.StatusNotFound)

	result, err := f.client.List(ctx, f.tok)
	require.NoError(t, err)
	require.Len(t, result.Notes, 1)
	assert.Equal(t, "a", result.Notes[0].ID)
	assert.Equal(t, []string{
		f.client.ResourceURL("b"),
		f.client.ResourceURL("broken"),
	}, result.Failed)
}

func TestListContainerFailure(t *testing.T) {
	f := newPodFixture(t, nil)
	f.pod.FailGet("notes/", http.StatusInternalServerError)

	_, err := f.client.List(context.Background(), f.tok)
	assert.ErrorIs(t, err, ErrStatus)
}

func TestListEmptyContainer(t *testing.T) {
	f := newPodFixture(t, nil)

	result, err := f.client.List(context.Background(), f.tok)
	require.NoError(t, err)
	assert.Empty(t, result.Notes)
	assert.Empty(t, result.Failed)
}

func TestTokenKeyBinding(t *testing.T) {
	t.Log("Testing proofs signed by a key other than the token's are rejected")

	f := newPodFixture(t, nil)
	other, err := dpop.GenerateKeyPair()
	require.NoError(t, err)

	swapped := *f.tok
	swapped.Key = other

	err = f.client.Put(context.Background(), &swapped, testNote("n1", "t", "c"))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	require.NotNil(t, statusErr.Auth)
	assert.Equal(t, dpop.ErrCodeKeyMismatch, statusErr.Auth.Code)

	assert.True(t, f.client.Create(context.Background(), f.tok, testNote("n1", "t", "c")))
}

func TestMissingToken(t *testing.T) {
	c := New("https://pod.example/alice", WithLogger(quietLogger))
	assert.Equal(t, "https://pod.example/alice/notes/", c.ContainerURL())

	_, err := c.List(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrNoToken))
	assert.False(t, c.Create(context.Background(), &account.AccessToken{}, testNote("n1", "t", "c")))
}

func TestPutRejectsEmptyID(t *testing.T) {
	c := New("https://pod.example/alice/")
	err := c.Put(context.Background(), nil, Note{Title: "t"})
	assert.ErrorIs(t, err, ErrInvalidNote)
}

func TestWithContainer(t *testing.T) {
	c := New("https://pod.example/alice/", WithContainer("/journal"))
	assert.Equal(t, "https://pod.example/alice/journal/", c.ContainerURL())
	assert.Equal(t, "https://pod.example/alice/journal/a%20b.ttl", c.ResourceURL("a b"))
}
