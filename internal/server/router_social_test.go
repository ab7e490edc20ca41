package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/ratelimit"
	"golang.org/x/time/rate"
)

type commentResponse struct {
	Comment  commentPayload `json:"comment"`
	Affected []string       `json:"affected"`
}

type reactionResponse struct {
	State    string `json:"state"`
	Likes    int64  `json:"likes"`
	Dislikes int64  `json:"dislikes"`
}

func (s *testServer) comment(t *testing.T, userID, catalogID, text, parentID string) commentPayload {
	t.Helper()
	recorder := s.do(t, http.MethodPost, "/catalogs/"+catalogID+"/comments", userID, map[string]any{
		"content":   text,
		"parent_id": parentID,
	})
	expectStatus(t, recorder, http.StatusCreated)
	return decodeBody[commentResponse](t, recorder).Comment
}

func TestCommentThreadsCarryAuthorNamesAndReactions(t *testing.T) {
	server := newTestServer(t)
	catalog := server.createCatalog(t, authorUser, "Essays", true)

	root := server.comment(t, readerUser, catalog.ID, "Lovely", "")
	if root.AuthorName != "Name of "+readerUser {
		t.Fatalf("expected author name from the session profile, got %q", root.AuthorName)
	}
	reply := server.comment(t, authorUser, catalog.ID, "Thanks", root.ID)
	nested := server.comment(t, otherUser, catalog.ID, "Agreed", reply.ID)
	if nested.ParentID != root.ID {
		t.Fatalf("expected reply to a reply to attach to the thread root, got %q", nested.ParentID)
	}

	like := decodeBody[reactionResponse](t, server.do(t, http.MethodPost, "/comments/"+root.ID+"/like", otherUser, nil))
	if like.State != "liked" || like.Likes != 1 || like.Dislikes != 0 {
		t.Fatalf("unexpected like result %+v", like)
	}
	dislike := decodeBody[reactionResponse](t, server.do(t, http.MethodPost, "/comments/"+root.ID+"/dislike", otherUser, nil))
	if dislike.State != "disliked" || dislike.Likes != 0 || dislike.Dislikes != 1 {
		t.Fatalf("unexpected dislike result %+v", dislike)
	}
	state := decodeBody[reactionResponse](t, server.do(t, http.MethodGet, "/comments/"+root.ID+"/reaction", otherUser, nil))
	if state.State != "disliked" {
		t.Fatalf("unexpected reaction state %q", state.State)
	}

	listing := decodeBody[struct {
		Comments []commentPayload `json:"comments"`
	}](t, server.do(t, http.MethodGet, "/catalogs/"+catalog.ID+"/comments", otherUser, nil))
	if len(listing.Comments) != 1 {
		t.Fatalf("expected one thread, got %d", len(listing.Comments))
	}
	thread := listing.Comments[0]
	if thread.ViewerReaction != "disliked" || thread.Dislikes != 1 {
		t.Fatalf("unexpected thread reactions %+v", thread)
	}
	if len(thread.Replies) != 2 || thread.Replies[0].ID != reply.ID || thread.Replies[1].AuthorName != "Name of "+otherUser {
		t.Fatalf("unexpected replies %+v", thread.Replies)
	}
}

func TestCommentModerationOverHTTP(t *testing.T) {
	server := newTestServer(t)
	catalog := server.createCatalog(t, authorUser, "Essays", true)
	root := server.comment(t, readerUser, catalog.ID, "First", "")
	reply := server.comment(t, otherUser, catalog.ID, "Second", root.ID)

	expectStatus(t, server.do(t, http.MethodPost, "/comments/"+root.ID+"/pin", readerUser, nil), http.StatusForbidden)
	expectStatus(t, server.do(t, http.MethodPost, "/comments/"+reply.ID+"/pin", authorUser, nil), http.StatusBadRequest)
	pinned := decodeBody[commentResponse](t, server.do(t, http.MethodPost, "/comments/"+root.ID+"/pin", authorUser, nil))
	if !pinned.Comment.IsPinned {
		t.Fatalf("expected comment to be pinned")
	}

	expectStatus(t, server.do(t, http.MethodDelete, "/comments/"+root.ID, otherUser, nil), http.StatusForbidden)
	deleted := decodeBody[struct {
		DeletedIDs []string `json:"deleted_ids"`
	}](t, server.do(t, http.MethodDelete, "/comments/"+root.ID, authorUser, nil))
	if len(deleted.DeletedIDs) != 2 {
		t.Fatalf("expected root and reply to be deleted, got %v", deleted.DeletedIDs)
	}
	expectStatus(t, server.do(t, http.MethodPost, "/comments/"+root.ID+"/like", readerUser, nil), http.StatusNotFound)
}

func TestCommentsOnPrivateCatalogsAreHidden(t *testing.T) {
	server := newTestServer(t)
	catalog := server.createCatalog(t, authorUser, "Private", false)

	expectStatus(t, server.do(t, http.MethodGet, "/catalogs/"+catalog.ID+"/comments", readerUser, nil), http.StatusNotFound)
	expectStatus(t, server.do(t, http.MethodPost, "/catalogs/"+catalog.ID+"/comments", readerUser, map[string]any{"content": "hi"}), http.StatusNotFound)
	expectStatus(t, server.do(t, http.MethodPost, "/catalogs/"+catalog.ID+"/comments", "", map[string]any{"content": "hi"}), http.StatusUnauthorized)
}

func TestCreateCommentIsRateLimitedPerUser(t *testing.T) {
	server := newTestServer(t, func(deps *Dependencies) {
		deps.CommentLimiter = ratelimit.New(rate.Every(time.Hour), 1, 0, nil)
	})
	catalog := server.createCatalog(t, authorUser, "Busy", true)

	server.comment(t, readerUser, catalog.ID, "one", "")
	limited := server.do(t, http.MethodPost, "/catalogs/"+catalog.ID+"/comments", readerUser, map[string]any{"content": "two"})
	expectStatus(t, limited, http.StatusTooManyRequests)
	if payload := decodeBody[errorPayload](t, limited); payload.Error != errorKindRateLimited {
		t.Fatalf("unexpected payload %+v", payload)
	}
	server.comment(t, otherUser, catalog.ID, "three", "")
}
