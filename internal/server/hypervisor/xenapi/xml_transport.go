package xenapi

import (
	"fmt"

	"github.com/kolo/xmlrpc"
)

// xmlSession implements session over XML-RPC, calling the same XenAPI
// method names the JSON-RPC transport uses — the two are equivalent wire
// encodings of one API.
type xmlSession struct {
	client    *xmlrpc.Client
	sessionID string
}

func newXMLSession(uri, user, password string) (session, error) {
	client, err := xmlrpc.NewClient(uri, nil)
	if err != nil {
		return nil, fmt.Errorf("xenapi xml-rpc: new client: %w", err)
	}

	var reply struct {
		Status  string `xmlrpc:"Status"`
		Value   string `xmlrpc:"Value"`
		ErrDesc []string
	}
	if err := client.Call("session.login_with_password", []interface{}{user, password, "1.0", "jitsu"}, &reply); err != nil {
		return nil, fmt.Errorf("xenapi xml-rpc: login: %w", err)
	}
	if reply.Status != "" && reply.Status != "Success" {
		return nil, fmt.Errorf("xenapi xml-rpc: login failed: %v", reply.ErrDesc)
	}
	return &xmlSession{client: client, sessionID: reply.Value}, nil
}

func (s *xmlSession) call(method string, args ...interface{}) (string, error) {
	params := append([]interface{}{s.sessionID}, args...)
	var reply struct {
		Status  string `xmlrpc:"Status"`
		Value   string `xmlrpc:"Value"`
		ErrDesc []string
	}
	if err := s.client.Call(method, params, &reply); err != nil {
		return "", err
	}
	if reply.Status != "" && reply.Status != "Success" {
		return "", fmt.Errorf("xenapi: %s failed: %v", method, reply.ErrDesc)
	}
	return reply.Value, nil
}

func (s *xmlSession) GetByNameLabel(name string) (string, error) {
	return s.call("VM.get_by_name_label", name)
}

func (s *xmlSession) GetPowerState(vmRef string) (string, error) {
	return s.call("VM.get_power_state", vmRef)
}

func (s *xmlSession) Start(vmRef string) error {
	_, err := s.call("VM.start", vmRef, false, false)
	return err
}

func (s *xmlSession) CleanShutdown(vmRef string) error {
	_, err := s.call("VM.clean_shutdown", vmRef)
	return err
}

func (s *xmlSession) HardShutdown(vmRef string) error {
	_, err := s.call("VM.hard_shutdown", vmRef)
	return err
}

func (s *xmlSession) Suspend(vmRef string) error {
	_, err := s.call("VM.suspend", vmRef)
	return err
}

func (s *xmlSession) Resume(vmRef string) error {
	_, err := s.call("VM.resume", vmRef, false, true)
	return err
}

var _ session = (*xmlSession)(nil)
