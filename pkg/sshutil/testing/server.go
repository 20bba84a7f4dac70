package testing

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Handler answers one exec request. A negative exit code drops the whole
// connection without reporting a status, simulating a lost session.
type Handler func(cmd string) (stdout, stderr string, exitCode int)

// Server is an in-process SSH server that accepts public-key auth for one
// user and one key and answers exec requests through a Handler.
type Server struct {
	Host    string
	Port    uint16
	HostKey ssh.PublicKey

	user       string
	authorized ssh.PublicKey
	handler    Handler
	config     *ssh.ServerConfig
	listener   net.Listener

	mu       sync.Mutex
	commands []string
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer starts a server on 127.0.0.1 with a random port. An empty
// user accepts any login name.
func NewServer(user string, authorized ssh.PublicKey, handler Handler) (*Server, error) {
	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	addr := ln.Addr().(*net.TCPAddr)

	s := &Server{
		Host:       "127.0.0.1",
		Port:       uint16(addr.Port),
		HostKey:    hostSigner.PublicKey(),
		user:       user,
		authorized: authorized,
		handler:    handler,
		listener:   ln,
		conns:      make(map[net.Conn]struct{}),
	}

	s.config = &ssh.ServerConfig{PublicKeyCallback: s.checkKey}
	s.config.AddHostKey(hostSigner)

	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(int(s.Port)))
}

// KnownHostsLine returns a known_hosts entry for this server.
func (s *Server) KnownHostsLine() string {
	return knownhosts.Line([]string{knownhosts.Normalize(s.Addr())}, s.HostKey)
}

// Commands returns every exec command received, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// DropConnections closes every open client connection.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

// Close stops accepting, drops open connections and waits for handlers.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.DropConnections()
	s.wg.Wait()
	return err
}

func (s *Server) checkKey(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
	if s.user != "" && conn.User() != s.user {
		return nil, fmt.Errorf("unknown user %q", conn.User())
	}
	if s.authorized == nil || !bytes.Equal(key.Marshal(), s.authorized.Marshal()) {
		return nil, errors.New("public key not authorized")
	}
	return &ssh.Permissions{}, nil
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
			}()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(raw net.Conn) {
	sc, chans, reqs, err := ssh.NewServerConn(raw, s.config)
	if err != nil {
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "only sessions are supported")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(raw, ch, chReqs)
	}
}

func (s *Server) handleSession(raw net.Conn, ch ssh.Channel, in <-chan *ssh.Request) {
	defer ch.Close()
	for req := range in {
		if req.Type != "exec" {
			_ = req.Reply(false, nil)
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			continue
		}
		_ = req.Reply(true, nil)

		s.mu.Lock()
		s.commands = append(s.commands, payload.Command)
		s.mu.Unlock()

		stdout, stderr, code := s.handler(payload.Command)
		if code < 0 {
			raw.Close()
			return
		}
		_, _ = ch.Write([]byte(stdout))
		_, _ = ch.Stderr().Write([]byte(stderr))
		status := struct{ Status uint32 }{uint32(code)}
		_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(&status))
		return
	}
}

// GenerateKeyFile writes an unencrypted ed25519 private key to path and its
// authorized_keys form to path.pub. It returns the public key.
func GenerateKeyFile(path string) (ssh.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		return nil, err
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path+".pub", ssh.MarshalAuthorizedKey(sshPub), 0644); err != nil {
		return nil, err
	}
	return sshPub, nil
}
