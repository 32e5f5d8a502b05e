package xenapi

import (
	"fmt"

	xenAPI "github.com/terra-farm/go-xen-api-client"
)

// jsonSession implements session over the JSON-RPC client.
type jsonSession struct {
	client  *xenAPI.Client
	session xenAPI.SessionRef
}

func newJSONSession(uri, user, password string) (session, error) {
	client, err := xenAPI.NewClient(uri, nil)
	if err != nil {
		return nil, fmt.Errorf("xenapi json-rpc: new client: %w", err)
	}
	ref, err := client.Session.LoginWithPassword(user, password, "1.0", "jitsu")
	if err != nil {
		return nil, fmt.Errorf("xenapi json-rpc: login: %w", err)
	}
	return &jsonSession{client: client, session: ref}, nil
}

func (s *jsonSession) GetByNameLabel(name string) (string, error) {
	refs, err := s.client.VM.GetByNameLabel(s.session, name)
	if err != nil {
		return "", err
	}
	if len(refs) == 0 {
		return "", fmt.Errorf("no vm named %q", name)
	}
	return string(refs[0]), nil
}

func (s *jsonSession) GetPowerState(vmRef string) (string, error) {
	state, err := s.client.VM.GetPowerState(s.session, xenAPI.VMRef(vmRef))
	if err != nil {
		return "", err
	}
	return string(state), nil
}

func (s *jsonSession) Start(vmRef string) error {
	return s.client.VM.Start(s.session, xenAPI.VMRef(vmRef), false, false)
}

func (s *jsonSession) CleanShutdown(vmRef string) error {
	return s.client.VM.CleanShutdown(s.session, xenAPI.VMRef(vmRef))
}

func (s *jsonSession) HardShutdown(vmRef string) error {
	return s.client.VM.HardShutdown(s.session, xenAPI.VMRef(vmRef))
}

func (s *jsonSession) Suspend(vmRef string) error {
	return s.client.VM.Suspend(s.session, xenAPI.VMRef(vmRef))
}

func (s *jsonSession) Resume(vmRef string) error {
	return s.client.VM.Resume(s.session, xenAPI.VMRef(vmRef), false, true)
}

var _ session = (*jsonSession)(nil)
