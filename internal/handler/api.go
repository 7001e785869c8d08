package handler

import (
	"github.com/switter/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db        *gorm.DB
	posts     *service.PostService
	users     *service.UserService
	media     *service.MediaService
	feed      *service.FeedService
	views     *service.ViewCache
	uploadDir string
	uploadURL string
}

// Deps 汇总构造 API 所需的外部依赖。
type Deps struct {
	DB        *gorm.DB
	Posts     *service.PostService
	Users     *service.UserService
	Media     *service.MediaService
	Feed      *service.FeedService
	Views     *service.ViewCache
	UploadDir string
	UploadURL string
}

// NewAPI constructs a handler set with shared services.
func NewAPI(deps Deps) *API {
	return &API{
		db:        deps.DB,
		posts:     deps.Posts,
		users:     deps.Users,
		media:     deps.Media,
		feed:      deps.Feed,
		views:     deps.Views,
		uploadDir: deps.UploadDir,
		uploadURL: deps.UploadURL,
	}
}
