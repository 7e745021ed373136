package api

import "io"

// LoginResult is the outcome of Login or Signup.
type LoginResult struct {
	Message      string `json:"message"`
	TOTPVerified bool   `json:"totp_verified"`
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Post struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
	Likes   int    `json:"likes"`
	Liked   bool   `json:"liked"`
	Author  string `json:"author"`
}

// NewPost is the form for CreatePost and EditPost. Image is optional; on
// edit, empty fields are left unchanged by the server.
type NewPost struct {
	Title     string
	Content   string
	Image     io.Reader
	ImageName string
}

type Comment struct {
	ID       int    `json:"id"`
	PostID   int    `json:"post_id"`
	ParentID int    `json:"parent_id,omitempty"`
	Content  string `json:"content"`
	Image    string `json:"image,omitempty"`
	Author   string `json:"author"`
}

// LikeResult is the like state of a post after LikePost toggled it.
type LikeResult struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

// User is the profile of the signed-in account.
type User struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	Username       string `json:"username"`
	Membership     string `json:"membership"`
	ProfilePicture string `json:"profile_picture"`
}
