package domain

// Activity is one extracurricular offering. Name is the lookup key and never changes.
type Activity struct {
	Name            string
	Description     string
	Schedule        string
	MaxParticipants int
	Participants    Roster
}

// SpotsLeft returns the remaining capacity, never negative.
func (a Activity) SpotsLeft() int {
	left := a.MaxParticipants - a.Participants.Len()
	if left < 0 {
		return 0
	}
	return left
}

// IsFull reports whether no further signups fit.
func (a Activity) IsFull() bool {
	return a.Participants.Len() >= a.MaxParticipants
}

// Roster is an ordered set of participant emails. Order is signup order.
// Copies share state; use Clone before mutating a Roster owned elsewhere.
type Roster struct {
	emails []string
	index  map[string]struct{}
}

// NewRoster builds a Roster from emails, dropping repeats after the first occurrence.
func NewRoster(emails ...string) Roster {
	r := Roster{
		emails: make([]string, 0, len(emails)),
		index:  make(map[string]struct{}, len(emails)),
	}
	for _, email := range emails {
		r.Add(email)
	}
	return r
}

// Len returns the number of participants.
func (r Roster) Len() int {
	return len(r.emails)
}

// Contains reports membership in constant time.
func (r Roster) Contains(email string) bool {
	_, ok := r.index[email]
	return ok
}

// Add appends email if absent and reports whether the roster changed.
func (r *Roster) Add(email string) bool {
	if r.index == nil {
		r.index = make(map[string]struct{})
	}
	if _, ok := r.index[email]; ok {
		return false
	}
	r.index[email] = struct{}{}
	r.emails = append(r.emails, email)
	return true
}

// Remove deletes email if present, keeping the order of the rest.
func (r *Roster) Remove(email string) bool {
	if _, ok := r.index[email]; !ok {
		return false
	}
	delete(r.index, email)
	for i, existing := range r.emails {
		if existing == email {
			r.emails = append(r.emails[:i:i], r.emails[i+1:]...)
			break
		}
	}
	return true
}

// Emails returns a copy of the participants in signup order.
func (r Roster) Emails() []string {
	out := make([]string, len(r.emails))
	copy(out, r.emails)
	return out
}

// Clone returns an independent copy.
func (r Roster) Clone() Roster {
	return NewRoster(r.emails...)
}
