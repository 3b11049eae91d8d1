package media

import (
	"sort"
	"strings"

	"github.com/lanikai/strawberry/internal/errs"
)

// OpenSource opens a source based on its "source spec". A source spec is a
// colon-separated string consisting of a source tag and a source path:
//
//	sourceSpec = sourceTag + ":" + sourcePath
//
// The format of the source path is defined by the registered OpenFunc.
func OpenSource(spec string) (Source, error) {
	var tags []string
	for t := range registry {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	log.Debug("registered source types: %v", tags)

	parts := strings.SplitN(spec, ":", 2)
	tag := parts[0]
	var path string
	if len(parts) == 2 {
		path = parts[1]
	}

	open, found := registry[tag]
	if !found {
		return nil, errs.New(errs.ConfigError, "source type %q not registered", tag)
	}
	return open(path)
}

// A function used to open a specific source type.
type OpenFunc func(path string) (Source, error)

var registry = map[string]OpenFunc{}

// Register a source type, identified by its "source tag". Sources of this type will be
// opened with the given function.
func RegisterSourceType(tag string, open OpenFunc) {
	registry[tag] = open
}
