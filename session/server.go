package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guseggert/webcli/transport"
	"go.uber.org/zap"
)

// Server is an http.Handler that runs one Session per WebSocket connection.
type Server struct {
	Log *zap.SugaredLogger
	// Path is the executable spawned for every connection, with no arguments.
	Path string
	// IdleTimeout closes a session after this long without input or output. Zero disables it.
	IdleTimeout time.Duration
	// KillGrace is how long to wait after SIGTERM before sending SIGKILL. Zero disables escalation.
	KillGrace time.Duration
	Observer  Observer

	mut      sync.Mutex
	sessions map[string]*Session
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := transport.Accept(w, r, s.Log.Named("transport"))
	if err != nil {
		s.Log.Debugf("error accepting WebSocket conn: %s", err)
		return
	}

	sess := newSession(r.Context(), uuid.NewString(), s, conn)
	s.add(sess)
	defer s.remove(sess)

	sess.run()
}

func (s *Server) observer() Observer {
	if s.Observer == nil {
		return nopObserver{}
	}
	return s.Observer
}

func (s *Server) add(sess *Session) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.sessions == nil {
		s.sessions = map[string]*Session{}
	}
	s.sessions[sess.ID] = sess
}

func (s *Server) remove(sess *Session) {
	s.mut.Lock()
	defer s.mut.Unlock()
	delete(s.sessions, sess.ID)
}

// Len returns the number of connected sessions.
func (s *Server) Len() int {
	s.mut.Lock()
	defer s.mut.Unlock()
	return len(s.sessions)
}

// Close tears down every connected session as if its client had disconnected.
func (s *Server) Close() {
	s.mut.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mut.Unlock()

	for _, sess := range sessions {
		sess.cancel()
	}
}
