package testapi

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Post is a post as served by the stub.
type Post struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
	Likes   int    `json:"likes"`
	Liked   bool   `json:"liked"`
	Author  string `json:"author"`
}

// Comment is a comment as served by the stub.
type Comment struct {
	ID       int    `json:"id"`
	PostID   int    `json:"post_id"`
	ParentID int    `json:"parent_id,omitempty"`
	Content  string `json:"content"`
	Image    string `json:"image,omitempty"`
	Author   string `json:"author"`
}

type account struct {
	uid            string
	email          string
	username       string
	password       passwordHash
	membership     string
	profilePicture string
	extra          map[string]any
}

// store is the in-memory state behind the routes. One user account exists
// at a time.
type store struct {
	mu       sync.Mutex
	uid      string
	acct     account
	posts    map[int]*Post
	comments map[int][]Comment
	checkout map[string]bool
	nextID   int
}

func newStore(email, username, password string) (*store, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	uid := uuid.NewString()
	return &store{
		uid: uid,
		acct: account{
			uid:        uid,
			email:      email,
			username:   username,
			password:   hash,
			membership: "free",
			extra:      map[string]any{},
		},
		posts:    make(map[int]*Post),
		comments: make(map[int][]Comment),
		checkout: make(map[string]bool),
		nextID:   1,
	}, nil
}

func (s *store) checkCredentials(email, password string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acct.email != "" &&
		strings.EqualFold(strings.TrimSpace(email), s.acct.email) &&
		s.acct.password.matches(password)
}

// register replaces the account. It fails when email is already taken.
func (s *store) register(email, username, password string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.EqualFold(strings.TrimSpace(email), s.acct.email) {
		return false
	}
	hash, err := hashPassword(password)
	if err != nil {
		return false
	}
	s.acct = account{
		uid:        s.uid,
		email:      strings.TrimSpace(email),
		username:   username,
		password:   hash,
		membership: "free",
		extra:      map[string]any{},
	}
	return true
}

func (s *store) profile() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileLocked()
}

func (s *store) profileLocked() map[string]any {
	out := map[string]any{
		"user_id":         s.acct.uid,
		"email":           s.acct.email,
		"username":        s.acct.username,
		"membership":      s.acct.membership,
		"profile_picture": s.acct.profilePicture,
	}
	for k, v := range s.acct.extra {
		out[k] = v
	}
	return out
}

func (s *store) updateProfile(fields map[string]any) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range fields {
		switch k {
		case "username":
			if name, ok := v.(string); ok {
				s.acct.username = name
			}
		case "email":
			if email, ok := v.(string); ok {
				s.acct.email = email
			}
		default:
			s.acct.extra[k] = v
		}
	}
	return s.profileLocked()
}

func (s *store) deleteAccount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acct = account{uid: s.uid, extra: map[string]any{}}
}

func (s *store) setPicture(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acct.profilePicture = name
}

func (s *store) listPosts() []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Post, 0, len(s.posts))
	for id := 1; id < s.nextID; id++ {
		if p, ok := s.posts[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

func (s *store) createPost(title, content, image string) Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &Post{ID: s.nextID, Title: title, Content: content, Image: image, Author: s.acct.username}
	s.posts[p.ID] = p
	s.nextID++
	return *p
}

func (s *store) editPost(id int, title, content, image string) (Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return Post{}, false
	}
	if title != "" {
		p.Title = title
	}
	if content != "" {
		p.Content = content
	}
	if image != "" {
		p.Image = image
	}
	return *p, true
}

func (s *store) deletePost(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return false
	}
	delete(s.posts, id)
	delete(s.comments, id)
	return true
}

func (s *store) toggleLike(id int) (Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return Post{}, false
	}
	p.Liked = !p.Liked
	if p.Liked {
		p.Likes++
	} else {
		p.Likes--
	}
	return *p, true
}

func (s *store) listComments(postID int) ([]Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return nil, false
	}
	return append([]Comment{}, s.comments[postID]...), true
}

func (s *store) createComment(postID, parentID int, content, image string) (Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return Comment{}, false
	}
	c := Comment{
		ID:       s.nextID,
		PostID:   postID,
		ParentID: parentID,
		Content:  content,
		Image:    image,
		Author:   s.acct.username,
	}
	s.nextID++
	s.comments[postID] = append(s.comments[postID], c)
	return c, true
}

func (s *store) openCheckout() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := "cs_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	s.checkout[id] = true
	s.acct.membership = "premium"
	return id
}

func (s *store) checkoutExists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkout[id]
}

func withUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, uidContextKey{}, uid)
}
