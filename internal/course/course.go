package course

import (
	"errors"
	"sync"
)

// DefaultName is the title of the built-in course
const DefaultName = "Personal Discovery Journey"

// ErrUnknownUnit is returned for an id that is not in the course
var ErrUnknownUnit = errors.New("unknown course unit")

// Unit is one week of the course
type Unit struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	WeekNumber  int    `json:"week_number" yaml:"week_number"`
	Completed   bool   `json:"completed" yaml:"completed"`
	Locked      bool   `json:"locked" yaml:"locked"`
}

// Course is a static, in-memory list of units
type Course struct {
	mu    sync.RWMutex
	name  string
	units []Unit
}

// New creates a course from units
func New(name string, units []Unit) *Course {
	cp := make([]Unit, len(units))
	copy(cp, units)
	return &Course{name: name, units: cp}
}

// Default returns the built-in twelve-week course
func Default() *Course {
	return New(DefaultName, []Unit{
		{ID: "1", Title: "Self-Discovery Fundamentals", Description: "Beginning the journey of self-discovery and core concepts", WeekNumber: 1, Completed: true},
		{ID: "2", Title: "Wheel of Life Balance", Description: "Analyzing key life areas and determining harmony", WeekNumber: 2, Completed: true},
		{ID: "3", Title: "Finding Values and Motivation", Description: "Identifying personal values and internal motivators", WeekNumber: 3},
		{ID: "4", Title: "Comfort and Growth Zones", Description: "Exploring boundaries and opportunities for personal development", WeekNumber: 4, Locked: true},
		{ID: "5", Title: "Internal Limitations and Blocks", Description: "Uncovering beliefs that limit your potential", WeekNumber: 5, Locked: true},
		{ID: "6", Title: "Zones of Genius", Description: "Discovering personal talents and unique abilities", WeekNumber: 6, Locked: true},
		{ID: "7", Title: "Strengths and Resources", Description: "Analyzing and activating internal resources to achieve goals", WeekNumber: 7, Locked: true},
		{ID: "8", Title: "GROW Technique", Description: "Systematic approach to goal setting and determining paths to achievement", WeekNumber: 8, Locked: true},
		{ID: "9", Title: "Ikigai: Finding Purpose", Description: "Japanese concept for finding meaning and purpose in life", WeekNumber: 9, Locked: true},
		{ID: "10", Title: "Working with Inner Critic", Description: "Transforming self-criticism into constructive inner dialogue", WeekNumber: 10, Locked: true},
		{ID: "11", Title: "Mindfulness Techniques", Description: "Awareness practices for deep connection with yourself", WeekNumber: 11, Locked: true},
		{ID: "12", Title: "Integration and Life Plan", Description: "Combining all insights into a complete picture and creating a development path", WeekNumber: 12, Locked: true},
	})
}

// Name returns the course title
func (c *Course) Name() string {
	return c.name
}

// Units returns a copy of the stored units
func (c *Course) Units() []Unit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := make([]Unit, len(c.units))
	copy(cp, c.units)
	return cp
}

// Progress is the completed fraction of units, 0 for an empty course
func (c *Course) Progress() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.units) == 0 {
		return 0
	}
	done := 0
	for _, u := range c.units {
		if u.Completed {
			done++
		}
	}
	return float64(done) / float64(len(c.units))
}

// Available counts units whose stored flag is unlocked
func (c *Course) Available() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, u := range c.units {
		if !u.Locked {
			n++
		}
	}
	return n
}

// SetCompleted updates a unit's completion. Completing a unit unlocks the
// first locked unit of the following week.
func (c *Course) SetCompleted(id string, completed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i, u := range c.units {
		if u.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrUnknownUnit
	}

	c.units[idx].Completed = completed
	if !completed {
		return nil
	}

	next := c.units[idx].WeekNumber + 1
	for i, u := range c.units {
		if u.WeekNumber == next && u.Locked {
			c.units[i].Locked = false
			break
		}
	}
	return nil
}
