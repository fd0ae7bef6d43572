// Package intermission detects the moment every active player has reached
// the end-of-level intermission and broadcasts which secrets were found.
package intermission

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/xirelogy/go-qcvm/internal/netmsg"
	"github.com/xirelogy/go-qcvm/internal/progs"
	"github.com/xirelogy/go-qcvm/internal/vm"
)

var log = commonlog.GetLogger("qcvm.intermission")

// RunningGlobal is the program global that is positive while the
// intermission is showing.
const RunningGlobal = "intermission_running"

// Client is one player slot on the server.
type Client struct {
	Active bool
	Entity int
}

// Level is the host-owned state of the level in progress. Reset it on
// every level change.
type Level struct {
	Skill   int
	Clients []Client
	// Reached is set once the completion message has been sent.
	Reached bool
}

// Reset clears the one-shot flag for a new level.
func (l *Level) Reset(skill int) {
	l.Skill = skill
	l.Reached = false
}

// Multicaster delivers a message reliably to every connected client.
type Multicaster interface {
	Multicast(msg []byte) error
}

// MulticastFunc adapts a function to Multicaster.
type MulticastFunc func(msg []byte) error

func (f MulticastFunc) Multicast(msg []byte) error { return f(msg) }

// Result describes one completion scan.
type Result struct {
	Fired         bool
	NotFoundCount int
	Expected      int
	Mismatch      bool
	Found         []uint16
}

// Scanner runs after each outermost server execution.
type Scanner struct {
	level *Level
	out   Multicaster
	buf   *netmsg.SizeBuf

	prog       *progs.Program
	runningOfs int
	hasRunning bool
	last       Result
}

// NewScanner returns a scanner bound to the host's level state.
func NewScanner(level *Level, out Multicaster) *Scanner {
	return &Scanner{
		level: level,
		out:   out,
		buf:   netmsg.NewSizeBuf(netmsg.MaxDatagram),
	}
}

// Last returns the result of the scan that fired most recently.
func (s *Scanner) Last() Result { return s.last }

// AfterExecute is a vm.PostExecuteHook.
func (s *Scanner) AfterExecute(m *vm.Machine) error {
	_, err := s.Scan(m)
	return err
}

// Scan checks the completion condition and, the first time it holds on a
// level, sends the level-complete message.
func (s *Scanner) Scan(m *vm.Machine) (Result, error) {
	if m.Side() != vm.SideServer || s.level.Reached {
		return Result{}, nil
	}
	if !s.allInIntermission(m.Entities()) {
		return Result{}, nil
	}
	ofs, ok := s.runningGlobal(m.Program())
	g := m.Globals()
	if !ok || g.Float(ofs) <= 0 {
		return Result{}, nil
	}
	s.level.Reached = true

	res := s.collect(m)
	s.last = res

	s.buf.Clear()
	msg := netmsg.LevelComplete{Skill: s.level.Skill, Secrets: res.Found}
	if err := msg.Write(s.buf); err != nil {
		return res, fmt.Errorf("level complete: %w", err)
	}
	if s.out != nil {
		if err := s.out.Multicast(s.buf.Bytes()); err != nil {
			return res, fmt.Errorf("level complete multicast: %w", err)
		}
	}
	log.Infof("level complete: skill %d, %d secrets found", s.level.Skill, len(res.Found))
	return res, nil
}

// allInIntermission requires at least one active client and every active
// client's entity to be inert.
func (s *Scanner) allInIntermission(ents *vm.Entities) bool {
	checked := false
	for _, c := range s.level.Clients {
		if !c.Active {
			continue
		}
		checked = true
		if c.Entity <= 0 || c.Entity >= ents.Num() {
			return false
		}
		if ents.Float(c.Entity, progs.FieldTakedamage) != 0 ||
			ents.Float(c.Entity, progs.FieldSolid) != 0 ||
			ents.Float(c.Entity, progs.FieldMovetype) != 0 {
			return false
		}
	}
	return checked
}

func (s *Scanner) runningGlobal(prog *progs.Program) (int, bool) {
	if prog != s.prog {
		s.prog = prog
		def, ok := prog.FindGlobal(RunningGlobal)
		s.runningOfs, s.hasRunning = int(def.Ofs), ok
	}
	return s.runningOfs, s.hasRunning
}

func (s *Scanner) collect(m *vm.Machine) Result {
	g := m.Globals()
	ents := m.Entities()
	total := int(g.Float(progs.GlobalTotalSecrets))
	found := int(g.Float(progs.GlobalFoundSecrets))
	if total < 0 {
		total = 0
	}

	res := Result{Fired: true}
	notFound := make([]bool, total)
	for e := 1; e < ents.Num(); e++ {
		if ents.IsFree(e) {
			continue
		}
		// secret triggers that stay around after firing are made non-solid
		if ents.Float(e, progs.FieldSolid) == 0 {
			continue
		}
		marker := ents.SecretIndexPlusOne(e)
		if marker == 0 {
			continue
		}
		idx := int(marker) - 1
		if idx >= 0 && idx < total {
			notFound[idx] = true
			res.NotFoundCount++
		}
	}

	res.Expected = int(g.Float(progs.GlobalTotalSecrets) - g.Float(progs.GlobalFoundSecrets))
	if res.NotFoundCount != res.Expected {
		res.Mismatch = true
		log.Warningf("only identified %d out of %d secrets not found", res.NotFoundCount, res.Expected)
	}

	res.Found = make([]uint16, 0, max(found, 0))
	for i := 0; i < total && len(res.Found) < found; i++ {
		if !notFound[i] {
			res.Found = append(res.Found, uint16(i))
		}
	}
	return res
}
