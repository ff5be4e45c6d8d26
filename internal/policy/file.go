package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"opsreport/pkg/domain"
)

// File is the on-disk policy override. Omitted sections keep their defaults
// and resolvers are merged per status, so a file naming only PENDING keeps
// the default PENDING_ADMIN_APPROVAL resolvers. An explicitly empty
// approval_required list disables approval gating.
//
//	resolvers:
//	  PENDING: [ADMIN, PLANNER]
//	  PENDING_ADMIN_APPROVAL: [ADMIN]
//	approval_required: [INPUTTER]
type File struct {
	Resolvers        map[domain.ApprovalStatus][]domain.Role `yaml:"resolvers"`
	ApprovalRequired *[]domain.Role                          `yaml:"approval_required"`
}

// ParseFile decodes a YAML policy document into a Router.
func ParseFile(data []byte) (*Router, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	return file.Router()
}

// LoadFile reads a YAML policy document from path. An empty path yields the
// default router.
func LoadFile(path string) (*Router, error) {
	if path == "" {
		return NewRouter(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParseFile(data)
}

// Router builds the router described by f, filling omitted sections with defaults.
func (f File) Router() (*Router, error) {
	resolvers := DefaultResolvers()
	for status, roles := range f.Resolvers {
		resolvers[status] = roles
	}
	required := DefaultApprovalRequired()
	if f.ApprovalRequired != nil {
		required = *f.ApprovalRequired
	}
	r, err := newRouter(resolvers, required)
	if err != nil {
		return nil, fmt.Errorf("policy file: %w", err)
	}
	return r, nil
}
