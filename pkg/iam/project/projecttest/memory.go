// Package projecttest provides an in-memory project.Repository for tests.
package projecttest

import (
	"context"
	"sync"

	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

type Memory struct {
	mu          sync.Mutex
	projects    map[kernel.TenantID]project.Project
	provisioned map[kernel.TenantID]project.ProvisionedProject
	// Transfers records completed transfers as project id -> user id.
	Transfers map[kernel.TenantID]kernel.UserID
}

func NewMemory(projects ...*project.Project) *Memory {
	m := &Memory{
		projects:    make(map[kernel.TenantID]project.Project),
		provisioned: make(map[kernel.TenantID]project.ProvisionedProject),
		Transfers:   make(map[kernel.TenantID]kernel.UserID),
	}
	for _, p := range projects {
		m.projects[p.ID] = *p
	}
	return m
}

// Provision marks an existing project as awaiting transfer.
func (m *Memory) Provision(projectID kernel.TenantID, clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provisioned[projectID] = project.ProvisionedProject{ProjectID: projectID, ClientID: clientID}
}

func (m *Memory) FindByID(_ context.Context, id kernel.TenantID) (*project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, project.ErrNotFound()
	}
	return &p, nil
}

func (m *Memory) Create(_ context.Context, p *project.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = *p
	return nil
}

func (m *Memory) FindProvisioned(_ context.Context, projectID kernel.TenantID) (*project.ProvisionedProject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.provisioned[projectID]
	if !ok {
		return nil, project.ErrNotProvisioned()
	}
	return &p, nil
}

func (m *Memory) CompleteTransfer(_ context.Context, projectID kernel.TenantID, userID kernel.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.provisioned[projectID]; !ok {
		return project.ErrNotProvisioned()
	}
	delete(m.provisioned, projectID)
	m.Transfers[projectID] = userID
	return nil
}
