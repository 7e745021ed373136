package testapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 8 << 20

func pathID(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	return id, err == nil && id > 0
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"posts": s.data.listPosts()})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	title, content := r.FormValue("title"), r.FormValue("content")
	if title == "" || content == "" {
		writeError(w, http.StatusBadRequest, "Title and content are required")
		return
	}
	image, err := formFile(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid image upload")
		return
	}
	post := s.data.createPost(title, content, image)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Post created successfully", "post": post})
}

func (s *Server) handleEditPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid post id")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	image, err := formFile(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid image upload")
		return
	}
	post, ok := s.data.editPost(id, r.FormValue("title"), r.FormValue("content"), image)
	if !ok {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Post updated successfully", "post": post})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid post id")
		return
	}
	if !s.data.deletePost(id) {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Post deleted successfully"})
}

func (s *Server) handleLikePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid post id")
		return
	}
	post, ok := s.data.toggleLike(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"liked": post.Liked, "likes": post.Likes})
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(r, "postID")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid post id")
		return
	}
	comments, ok := s.data.listComments(postID)
	if !ok {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(r, "postID")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid post id")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	content := r.FormValue("content")
	if content == "" {
		writeError(w, http.StatusBadRequest, "Content is required")
		return
	}
	parentID, _ := strconv.Atoi(r.FormValue("parent_id"))
	image, err := formFile(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid image upload")
		return
	}
	comment, ok := s.data.createComment(postID, parentID, content, image)
	if !ok {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Comment created successfully", "comment": comment})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"user": s.data.profile()})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "No fields to update")
		return
	}
	user := s.data.updateProfile(fields)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Profile updated successfully", "user": user})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	s.data.deleteAccount()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Account deleted successfully"})
}

func (s *Server) handleProfilePicture(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	name, err := formFile(r, "profile_picture")
	if err != nil || name == "" {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	s.data.setPicture(name)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Profile picture updated", "profile_picture": name})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"id": s.data.openCheckout()})
}

func (s *Server) handleVerifySession(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" || !s.data.checkoutExists(id) {
		writeError(w, http.StatusNotFound, "Checkout session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "payment_status": "paid", "membership": "premium"})
}
