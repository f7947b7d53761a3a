package reddit_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pserver-scout/internal/fetch"
	"pserver-scout/internal/model"
	"pserver-scout/internal/reddit"
)

const hotJSON = `{"data":{"children":[
{"data":{"title":"Server is back","author":"gm","url":"https://i.test/a.png","score":42,"num_comments":7,"created_utc":1735689600,"permalink":"/r/wow/comments/1/back/","stickied":true}},
{"data":{"title":"Guild recruiting","author":"bob","url":"https://reddit.com/r/wow/comments/2/","score":3,"num_comments":0,"created_utc":1735686000,"selftext":"join us","permalink":"/r/wow/comments/2/"}}
]}}`

func TestPosts_DefaultsToHot(t *testing.T) {
	var gotPath, gotLimit, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotLimit, gotUA = r.URL.Path, r.URL.Query().Get("limit"), r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(hotJSON))
	}))
	defer srv.Close()

	c := reddit.New(reddit.Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
	posts, err := c.Posts(context.Background(), "r/wow", 500)
	if err != nil {
		t.Fatalf("hot posts: %v", err)
	}
	if gotPath != "/r/wow/hot.json" || gotLimit != "100" || gotUA != reddit.DefaultUserAgent {
		t.Fatalf("request path=%q limit=%q ua=%q", gotPath, gotLimit, gotUA)
	}
	want := []model.RedditPost{
		{Title: "Server is back", Author: "gm", URL: "https://i.test/a.png", Score: 42, NumComments: 7, CreatedUTC: 1735689600, Permalink: "/r/wow/comments/1/back/", Stickied: true},
		{Title: "Guild recruiting", Author: "bob", URL: "https://reddit.com/r/wow/comments/2/", Score: 3, CreatedUTC: 1735686000, Selftext: "join us", Permalink: "/r/wow/comments/2/"},
	}
	if diff := cmp.Diff(want, posts); diff != "" {
		t.Fatalf("posts (-want +got):\n%s", diff)
	}
	if posts[0].FullURL() != "https://reddit.com/r/wow/comments/1/back/" {
		t.Fatalf("full url = %q", posts[0].FullURL())
	}
}

func TestPosts_NewSortErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusTooManyRequests)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/wow/new.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()
	c := reddit.New(reddit.Options{BaseURL: srv.URL, Sort: " New "})

	_, err := c.Posts(context.Background(), "wow", 5)
	if !errors.Is(err, fetch.ErrRateLimited) {
		t.Fatalf("429 err = %v", err)
	}

	status.Store(http.StatusForbidden)
	_, err = c.Posts(context.Background(), "wow", 5)
	var se *fetch.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("403 err = %v", err)
	}
}

func TestSubreddit(t *testing.T) {
	cases := map[string]string{
		"wow":                           "wow",
		"r/wow":                         "wow",
		"/r/wow/":                       "wow",
		"https://www.reddit.com/r/wow/": "wow",
		"https://reddit.com/r/wow/hot/": "wow",
	}
	for in, want := range cases {
		if got := reddit.Subreddit(in); got != want {
			t.Errorf("Subreddit(%q) = %q, want %q", in, got, want)
		}
	}
}
