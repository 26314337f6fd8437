package assets

import (
	"strings"
)

// Category is the declared purpose of an uploaded file. It selects the
// validation rule set and the storage subfolder.
type Category string

const (
	CategoryLogo     Category = "logo"
	CategoryPhoto    Category = "photo"
	CategoryDocument Category = "document"
)

// ParseCategory maps a form value to a Category. Anything that is not
// "logo" or "photo" is treated as a document.
func ParseCategory(s string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryLogo:
		return CategoryLogo
	case CategoryPhoto:
		return CategoryPhoto
	default:
		return CategoryDocument
	}
}

// Subfolder returns the directory name used for committed assets of this
// category.
func (c Category) Subfolder() string {
	switch c {
	case CategoryLogo:
		return "logo"
	case CategoryPhoto:
		return "photo"
	default:
		return "documents"
	}
}

// EntityKind names the kind of business record that owns an asset.
type EntityKind string

const (
	EntityTeam     EntityKind = "team"
	EntityPlayer   EntityKind = "player"
	EntityLeague   EntityKind = "league"
	EntityOfficial EntityKind = "official"
)

// EntityKinds lists every kind in a stable order.
var EntityKinds = []EntityKind{EntityTeam, EntityPlayer, EntityLeague, EntityOfficial}

// ParseEntityKind accepts both the singular and plural spelling.
func ParseEntityKind(s string) (EntityKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range EntityKinds {
		if s == string(k) || s == k.Plural() {
			return k, true
		}
	}
	return "", false
}

// Plural is the top-level directory name for the kind.
func (k EntityKind) Plural() string {
	return string(k) + "s"
}

// DefaultEntityKind is used when an upload does not name the owning kind.
// Logos belong to teams, photos to players, and documents default to teams.
func DefaultEntityKind(c Category) EntityKind {
	if c == CategoryPhoto {
		return EntityPlayer
	}
	return EntityTeam
}

// EntityRef identifies the owner of a committed asset.
type EntityRef struct {
	Kind EntityKind
	ID   string
}

// StagedAsset describes a file that has been written to the staging area
// but not yet committed. It must either be committed or discarded.
type StagedAsset struct {
	TempPath      string
	OriginalName  string
	SanitizedName string
	GeneratedName string
	Size          int64
	MimeType      string
	Category      Category
}

// CommittedAsset describes a file that lives at its final, entity-scoped
// location.
type CommittedAsset struct {
	RelativePath string
	PublicURL    string
	Size         int64
	MimeType     string
	OriginalName string
}
