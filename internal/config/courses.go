package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/davenfroberg/gpta-backend/internal/platform/envutil"
)

// Course maps one forum network to its display name and flags.
type Course struct {
	DisplayName string `yaml:"display_name"`
	NetworkID   string `yaml:"network_id"`
	Ignored     bool   `yaml:"ignored"`
}

type Courses struct {
	byKey map[string]Course
	byID  map[string]Course
	order []Course
}

type coursesFile struct {
	Courses []Course `yaml:"courses"`
}

// Load reads the course roster from COURSES_CONFIG_PATH (default
// "courses.yaml").
func Load() (*Courses, error) {
	path := envutil.Str("COURSES_CONFIG_PATH", "courses.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read courses config %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Courses, error) {
	var f coursesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse courses config: %w", err)
	}
	if len(f.Courses) == 0 {
		return nil, fmt.Errorf("courses config is empty")
	}

	c := &Courses{
		byKey: make(map[string]Course, len(f.Courses)),
		byID:  make(map[string]Course, len(f.Courses)),
	}
	for _, course := range f.Courses {
		course.DisplayName = strings.TrimSpace(course.DisplayName)
		course.NetworkID = strings.TrimSpace(course.NetworkID)
		if course.DisplayName == "" || course.NetworkID == "" {
			return nil, fmt.Errorf("courses config: entry missing display_name or network_id")
		}
		c.byKey[Key(course.DisplayName)] = course
		c.byID[course.NetworkID] = course
		c.order = append(c.order, course)
	}
	return c, nil
}

// Key normalizes a display name for lookup: "CPSC 330" -> "cpsc330".
func Key(displayName string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(displayName)), " ", "")
}

// ByName resolves a course by display name (case and space insensitive).
func (c *Courses) ByName(displayName string) (Course, bool) {
	course, ok := c.byKey[Key(displayName)]
	return course, ok
}

// ByID resolves a course by its forum network id.
func (c *Courses) ByID(networkID string) (Course, bool) {
	course, ok := c.byID[strings.TrimSpace(networkID)]
	return course, ok
}

// Active returns every non-ignored course in roster order.
func (c *Courses) Active() []Course {
	out := make([]Course, 0, len(c.order))
	for _, course := range c.order {
		if !course.Ignored {
			out = append(out, course)
		}
	}
	return out
}

// Ignored reports whether a network id belongs to a course that scraping
// should skip.
func (c *Courses) Ignored(networkID string) bool {
	course, ok := c.ByID(networkID)
	return ok && course.Ignored
}
