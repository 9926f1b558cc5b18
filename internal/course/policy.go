package course

// LockPolicy maps a week number to a display-time lock override.
// Weeks listed as true render locked whatever their stored flag says.
type LockPolicy map[int]bool

// DefaultLockPolicy keeps weeks 2 and 3 closed in the course view
var DefaultLockPolicy = LockPolicy{2: true, 3: true}

// Locked reports the effective lock of u under the policy
func (p LockPolicy) Locked(u Unit) bool {
	if p[u.WeekNumber] {
		return true
	}
	return u.Locked
}

// TopicSource supplies the plan topic of a week
type TopicSource interface {
	WeekTopic(week int) string
}

// Row is a unit as the course view shows it
type Row struct {
	Unit   Unit   `json:"unit" yaml:"unit"`
	Locked bool   `json:"locked" yaml:"locked"`
	Topic  string `json:"topic" yaml:"topic"`
}

// Display evaluates the policy over the stored units. Stored units are not modified.
func (c *Course) Display(policy LockPolicy, topics TopicSource) []Row {
	units := c.Units()
	rows := make([]Row, len(units))
	for i, u := range units {
		rows[i] = Row{Unit: u, Locked: policy.Locked(u)}
		if topics != nil {
			rows[i].Topic = topics.WeekTopic(u.WeekNumber)
		}
	}
	return rows
}

// Week returns the displayed row for a week number
func (c *Course) Week(policy LockPolicy, topics TopicSource, week int) (Row, bool) {
	for _, row := range c.Display(policy, topics) {
		if row.Unit.WeekNumber == week {
			return row, true
		}
	}
	return Row{}, false
}
