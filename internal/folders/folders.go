package folders

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/davenfroberg/gpta-backend/internal/clients/piazza"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

// Folder is one top-level course folder with its optional child paths.
type Folder struct {
	Name     string   `json:"name"`
	Children []string `json:"children,omitempty"`
}

// divisionSlash is what the forum substitutes for "/" inside a folder name
// to keep its own path syntax unambiguous.
const divisionSlash = "∕"

// Service lists a course's instructor-defined folder tree from the feed.
type Service struct {
	log     *logger.Logger
	pz      piazza.Client
	courses *config.Courses
}

func New(log *logger.Logger, pz piazza.Client, courses *config.Courses) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pz == nil || courses == nil {
		return nil, fmt.Errorf("piazza client and course config required")
	}
	return &Service{
		log:     log.With("service", "FolderService"),
		pz:      pz,
		courses: courses,
	}, nil
}

func (s *Service) Get(ctx context.Context, courseName string) ([]Folder, error) {
	course, ok := s.courses.ByName(courseName)
	if !ok {
		return nil, fmt.Errorf("unknown course %q", courseName)
	}

	feed, err := s.pz.Feed(ctx, course.NetworkID)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	tags := feed.Tags.Instructor
	s.log.Info("Fetched instructor folder tags",
		"course_id", course.NetworkID,
		"tag_count", len(tags),
	)
	return Process(tags), nil
}

// Process groups raw folder paths into parents with sorted children. A name
// that appears only as someone's child never becomes its own top-level
// folder.
func Process(folderList []string) []Folder {
	parents := map[string]*Folder{}
	childNames := map[string]bool{}

	for _, path := range folderList {
		normalized := strings.ReplaceAll(path, divisionSlash, "/")
		if !strings.Contains(normalized, "/") {
			continue
		}
		parts := strings.SplitN(normalized, "/", 2)
		parent, child := parts[0], parts[1]
		childNames[child] = true

		f, ok := parents[parent]
		if !ok {
			f = &Folder{Name: parent}
			parents[parent] = f
		}
		if !contains(f.Children, child) {
			f.Children = append(f.Children, child)
		}
	}

	for _, path := range folderList {
		normalized := strings.ReplaceAll(path, divisionSlash, "/")
		if strings.Contains(normalized, "/") {
			continue
		}
		if childNames[path] {
			continue
		}
		if _, ok := parents[path]; !ok {
			parents[path] = &Folder{Name: path}
		}
	}

	names := make([]string, 0, len(parents))
	for name := range parents {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Folder, 0, len(names))
	for _, name := range names {
		f := *parents[name]
		sort.Strings(f.Children)
		out = append(out, f)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
