package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authclient"
)

func (c *Client) FetchPosts(ctx context.Context) ([]Post, error) {
	var out struct {
		Posts []Post `json:"posts"`
	}
	if err := c.do(ctx, call{method: http.MethodGet, route: RoutePosts}, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

func (c *Client) CreatePost(ctx context.Context, in NewPost) (Post, error) {
	return c.submitPost(ctx, http.MethodPost, RouteCreatePost, "create post", in)
}

// EditPost updates post id. Empty fields are kept by the server.
func (c *Client) EditPost(ctx context.Context, id int, in NewPost) (Post, error) {
	return c.submitPost(ctx, http.MethodPut, RouteEditPost+"/"+strconv.Itoa(id), "edit post", in)
}

func (c *Client) submitPost(ctx context.Context, method, route, label string, in NewPost) (Post, error) {
	fields := map[string]string{}
	if in.Title != "" {
		fields["title"] = in.Title
	}
	if in.Content != "" {
		fields["content"] = in.Content
	}
	var file *formFile
	if in.Image != nil {
		file = &formFile{field: "image", name: in.ImageName, r: in.Image}
	}
	body, ctype, err := multipartBody(fields, file)
	if err != nil {
		return Post{}, err
	}

	var out struct {
		Post Post `json:"post"`
	}
	err = c.do(ctx, call{
		method: method,
		route:  route,
		body:   body,
		ctype:  ctype,
		action: authclient.ActionPost,
		label:  label,
	}, &out)
	return out.Post, err
}

func (c *Client) DeletePost(ctx context.Context, id int) error {
	return c.do(ctx, call{
		method: http.MethodDelete,
		route:  RouteDeletePost + "/" + strconv.Itoa(id),
		action: authclient.ActionDelete,
		label:  "delete post",
	}, nil)
}

// LikePost toggles the caller's like on post id.
func (c *Client) LikePost(ctx context.Context, id int) (LikeResult, error) {
	var out LikeResult
	err := c.do(ctx, call{
		method: http.MethodPost,
		route:  RouteLikePost + "/" + strconv.Itoa(id),
		action: authclient.ActionLike,
		label:  "like",
	}, &out)
	return out, err
}

func (c *Client) FetchComments(ctx context.Context, postID int) ([]Comment, error) {
	var out struct {
		Comments []Comment `json:"comments"`
	}
	err := c.do(ctx, call{method: http.MethodGet, route: RouteComments + "/" + strconv.Itoa(postID)}, &out)
	if err != nil {
		return nil, err
	}
	return out.Comments, nil
}

func (c *Client) CreateComment(ctx context.Context, postID int, content string) (Comment, error) {
	return c.createComment(ctx, postID, 0, content)
}

// ReplyToComment posts content as a reply to comment parentID.
func (c *Client) ReplyToComment(ctx context.Context, postID, parentID int, content string) (Comment, error) {
	return c.createComment(ctx, postID, parentID, content)
}

func (c *Client) createComment(ctx context.Context, postID, parentID int, content string) (Comment, error) {
	fields := map[string]string{"content": content}
	if parentID > 0 {
		fields["parent_id"] = strconv.Itoa(parentID)
	}
	body, ctype, err := multipartBody(fields, nil)
	if err != nil {
		return Comment{}, err
	}

	var out struct {
		Comment Comment `json:"comment"`
	}
	err = c.do(ctx, call{
		method: http.MethodPost,
		route:  RouteCreateComment + "/" + strconv.Itoa(postID),
		body:   body,
		ctype:  ctype,
		action: authclient.ActionComment,
		label:  "comment",
	}, &out)
	return out.Comment, err
}
