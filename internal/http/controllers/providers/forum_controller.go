package providers

import (
	"context"
	"net/http"

	httperrors "github.com/dropDatabas3/tcpoidc/internal/http/errors"
	"github.com/dropDatabas3/tcpoidc/internal/http/helpers"
	"github.com/dropDatabas3/tcpoidc/internal/provider"
)

// ForumSettings son los settings que el foro lee al renderizar los botones.
type ForumSettings interface {
	Bool(ctx context.Context, key string) (bool, error)
	Int(ctx context.Context, key string, def int) (int, error)
	Key(parts ...string) string
	Namespace() string
}

// ForumController arma el payload que el frontend del foro serializa.
type ForumController struct {
	lister   Lister
	settings ForumSettings
}

func NewForumController(lister Lister, s ForumSettings) *ForumController {
	return &ForumController{lister: lister, settings: s}
}

// Payload maneja GET /api/forum.
func (c *ForumController) Payload(w http.ResponseWriter, r *http.Request) {
	payload, err := c.build(r.Context())
	if err != nil {
		httperrors.WriteErrorLogged(w, r, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, payload)
}

func (c *ForumController) build(ctx context.Context) (map[string]any, error) {
	list, err := c.lister.ListSummaries(ctx, provider.RoleForum, false)
	if err != nil {
		return nil, err
	}
	onlyIcons, err := c.settings.Bool(ctx, c.settings.Key("only_icons"))
	if err != nil {
		return nil, err
	}
	width, err := c.settings.Int(ctx, c.settings.Key("popupWidth"), 580)
	if err != nil {
		return nil, err
	}
	height, err := c.settings.Int(ctx, c.settings.Key("popupHeight"), 400)
	if err != nil {
		return nil, err
	}
	fullscreen, err := c.settings.Bool(ctx, c.settings.Key("fullscreenPopup"))
	if err != nil {
		return nil, err
	}

	ns := c.settings.Namespace()
	return map[string]any{
		ns:                      list,
		ns + ".only_icons":      onlyIcons,
		ns + ".popupWidth":      width,
		ns + ".popupHeight":     height,
		ns + ".fullscreenPopup": fullscreen,
	}, nil
}
