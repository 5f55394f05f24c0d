package services

import (
	"context"
	"fmt"
	"time"

	"newstech/pkg/api"
	"newstech/pkg/cache"
	"newstech/pkg/models"
)

// ChangeNotifier is told about every successful mutation so open listing
// views can refresh.
type ChangeNotifier interface {
	PostsChanged(ctx context.Context, postID int, action string)
}

// Notifiers fans a change out to several notifiers, in order.
type Notifiers []ChangeNotifier

func (ns Notifiers) PostsChanged(ctx context.Context, postID int, action string) {
	for _, n := range ns {
		if n != nil {
			n.PostsChanged(ctx, postID, action)
		}
	}
}

// PostsService decorates a Backend with a short-lived read cache and change
// notifications. Cached pages are keyed by the caller's credentials.
type PostsService struct {
	backend  api.Backend
	redis    *cache.Redis
	notifier ChangeNotifier
	listTTL  time.Duration
	itemTTL  time.Duration
}

func NewPostsService(backend api.Backend, redis *cache.Redis, notifier ChangeNotifier) *PostsService {
	return &PostsService{
		backend:  backend,
		redis:    redis,
		notifier: notifier,
		listTTL:  30 * time.Second,
		itemTTL:  time.Minute,
	}
}

// SetNotifier replaces the change notifier. Call it before serving.
func (s *PostsService) SetNotifier(n ChangeNotifier) {
	s.notifier = n
}

func (s *PostsService) ListPosts(ctx context.Context, q models.Query) (models.Page, error) {
	cacheKey := fmt.Sprintf("posts:list:%s:%s:%d:%d:%s",
		api.CredentialsScope(ctx), q.Q, q.Page, q.PerPage, q.Sort)
	var cached models.Page
	if s.redis.Get(ctx, cacheKey, &cached) {
		return cached, nil
	}

	page, err := s.backend.ListPosts(ctx, q)
	if err != nil {
		return page, err
	}

	s.redis.Set(ctx, cacheKey, page, s.listTTL)
	return page, nil
}

func (s *PostsService) GetPost(ctx context.Context, id int) (models.Post, error) {
	cacheKey := fmt.Sprintf("posts:item:%s:%d", api.CredentialsScope(ctx), id)
	var cached models.Post
	if s.redis.Get(ctx, cacheKey, &cached) {
		return cached, nil
	}

	post, err := s.backend.GetPost(ctx, id)
	if err != nil {
		return post, err
	}

	s.redis.Set(ctx, cacheKey, post, s.itemTTL)
	return post, nil
}

func (s *PostsService) DeletePost(ctx context.Context, id int) error {
	if err := s.backend.DeletePost(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, id, "deleted")
	return nil
}

func (s *PostsService) SavePost(ctx context.Context, id int, fields models.PostFields, image *models.ImageFile) (models.Post, error) {
	post, err := s.backend.SavePost(ctx, id, fields, image)
	if err != nil {
		return post, err
	}
	action := "updated"
	if id == 0 {
		action = "created"
	}
	s.changed(ctx, post.ID, action)
	return post, nil
}

func (s *PostsService) changed(ctx context.Context, id int, action string) {
	s.redis.DelPattern(ctx, "posts:*")
	if s.notifier != nil {
		s.notifier.PostsChanged(ctx, id, action)
	}
}
