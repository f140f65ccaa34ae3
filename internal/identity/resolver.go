package identity

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"supportwidget/entity"
	"supportwidget/internal/lib/sl"
	"supportwidget/internal/storage"
)

// Profile store keys, kept compatible with earlier widget builds.
const (
	guestIDKey  = "sw_guest_id"
	deviceIDKey = "sw_device_id"
)

const minIDLength = 3

// Static ids developers paste in from examples. Any of these would give
// every visitor of the site the same chat history.
var placeholderIDs = map[string]struct{}{
	"guest": {}, "guest_user": {}, "guest_user_id": {}, "demo": {},
	"test": {}, "user": {}, "user_id": {}, "undefined": {}, "null": {},
	"default": {}, "account": {}, "client": {}, "customer": {},
	"visitor": {}, "visitor_id": {}, "admin": {}, "support": {}, "temp": {},
}

// Resolver finalizes the guest identity attached to chat-start requests
// and derives the per-browser device fingerprint.
type Resolver struct {
	store    *storage.Store
	validate *validator.Validate
	log      *slog.Logger
}

func NewResolver(store *storage.Store, log *slog.Logger) *Resolver {
	return &Resolver{
		store:    store,
		validate: validator.New(),
		log:      log.With(sl.Module("identity")),
	}
}

// Resolve produces the finalized identity for the caller-supplied user.
// A missing or placeholder id is replaced by a persisted generated guest id;
// replacement of a supplied value is logged so integrators can catch it.
func (r *Resolver) Resolve(user entity.WidgetUser) (entity.GuestIdentity, error) {
	if err := r.validate.Struct(user); err != nil {
		r.log.Warn("invalid user payload supplied by host page", sl.Err(err))
	}

	candidate := user.ID
	if candidate == "" {
		candidate = user.ExternalID
	}

	name := displayName(user)

	if candidate != "" {
		if reason := PlaceholderReason(candidate, user.Name); reason != "" {
			r.log.Warn("supplied user id causes shared chat history, switching to unique guest id",
				slog.String("rejected_id", candidate),
				slog.String("reason", reason),
			)
			candidate = ""
		}
	}

	if candidate == "" {
		guestID, err := r.getOrCreateGuestID()
		if err != nil {
			return entity.GuestIdentity{}, err
		}
		return entity.GuestIdentity{ID: guestID, DisplayName: name}, nil
	}

	return entity.GuestIdentity{ID: candidate, DisplayName: name}, nil
}

// IsPlaceholderID reports whether id is too generic to distinguish visitors.
func IsPlaceholderID(id, suppliedName string) bool {
	return PlaceholderReason(id, suppliedName) != ""
}

// PlaceholderReason returns "" for acceptable ids, otherwise a short
// human-readable reason used in the integration warning.
func PlaceholderReason(id, suppliedName string) string {
	normalized := strings.ToLower(strings.TrimSpace(id))

	if _, bad := placeholderIDs[normalized]; bad {
		return "denylisted generic token"
	}
	if strings.Contains(normalized, "placeholder") || strings.Contains(normalized, "demo_user") {
		return "contains placeholder marker"
	}
	if normalized == "user_id_from_db" {
		return "known bad literal"
	}
	if len(id) < minIDLength {
		return "shorter than 3 characters"
	}
	if suppliedName != "" && strings.EqualFold(id, suppliedName) {
		return "equals the display name"
	}
	return ""
}

func (r *Resolver) getOrCreateGuestID() (string, error) {
	if existing := r.store.Get(guestIDKey); existing != "" {
		return existing, nil
	}

	guestID := fmt.Sprintf("guest_%s_%s",
		strconv.FormatInt(time.Now().UnixMilli(), 36),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:7],
	)
	if err := r.store.Set(guestIDKey, guestID); err != nil {
		return "", fmt.Errorf("persisting guest id: %w", err)
	}

	r.log.Info("guest mode: assigned unique id", slog.String("guest_id", guestID))
	return guestID, nil
}

func displayName(user entity.WidgetUser) string {
	name := strings.TrimSpace(user.Name)
	if name == "" {
		name = strings.TrimSpace(user.FullName)
	}
	if name == "" || strings.EqualFold(name, "guest") {
		return "Guest"
	}
	return name
}
