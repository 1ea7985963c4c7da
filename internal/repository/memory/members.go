package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/repository"
)

// MemberDirectory is a mutable in-memory member registry.
type MemberDirectory struct {
	mu      sync.RWMutex
	members map[string]domain.Member
}

// NewMemberDirectory creates a directory seeded with members.
func NewMemberDirectory(members ...domain.Member) *MemberDirectory {
	d := &MemberDirectory{members: make(map[string]domain.Member, len(members))}
	for _, m := range members {
		d.members[m.ID] = m
	}
	return d
}

var _ repository.MemberRepository = (*MemberDirectory)(nil)

// Put inserts or replaces a member.
func (d *MemberDirectory) Put(member domain.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[member.ID] = member
}

// SetStatus changes a member's status, as a contribution or renewal event would.
func (d *MemberDirectory) SetStatus(memberID string, status domain.MemberStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.members[memberID]; ok {
		m.Status = status
		d.members[memberID] = m
	}
}

func (d *MemberDirectory) GetMember(ctx context.Context, memberID string) (*domain.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[memberID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

type memberRecord struct {
	ID          string `json:"id"`
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Status      string `json:"status"`
}

// LoadJSON adds the members of a JSON array and returns how many were loaded.
func (d *MemberDirectory) LoadJSON(raw []byte) (int, error) {
	var records []memberRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return 0, fmt.Errorf("decode members: %w", err)
	}
	for _, r := range records {
		status := domain.MemberStatus(r.Status)
		if r.ID == "" || !status.Valid() {
			return 0, fmt.Errorf("member %q: invalid id or status %q", r.ID, r.Status)
		}
	}
	for _, r := range records {
		d.Put(domain.Member{
			ID:          r.ID,
			FullName:    r.FullName,
			PhoneNumber: r.PhoneNumber,
			Email:       r.Email,
			Status:      domain.MemberStatus(r.Status),
		})
	}
	return len(records), nil
}
