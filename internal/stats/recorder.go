package stats

import (
	"fmt"

	"github.com/xirelogy/go-qcvm/internal/netmsg"
)

// Session is the client's view of the level that just ended.
type Session struct {
	MapContext
	GameType       string
	Players        uint32
	CompletedTime  uint32
	MonstersKilled uint32
	MonstersTotal  uint32
	DemoPlayback   bool
}

// Recorder turns level-complete messages received by the client into
// completion rows.
type Recorder struct {
	DB      *DB
	Enabled bool
}

// HandleLevelComplete decodes msg and records a completion. Demo playback
// and disabled recording are ignored. It reports whether a row was written.
func (r *Recorder) HandleLevelComplete(msg []byte, s Session) (bool, error) {
	lc, err := netmsg.ParseLevelComplete(msg)
	if err != nil {
		return false, err
	}
	if s.DemoPlayback || !r.Enabled || r.DB == nil {
		return false, nil
	}
	log.Debugf("level completed: %s (%s)", s.MapName, s.Game)
	err = r.DB.InsertMapCompletion(Completion{
		MapContext:             s.MapContext,
		GameType:               s.GameType,
		Skill:                  uint16(lc.Skill),
		MaxSimultaneousPlayers: s.Players,
		CompletedTime:          s.CompletedTime,
		SecretsFound:           lc.Secrets,
		MonstersKilled:         s.MonstersKilled,
		MonstersTotal:          s.MonstersTotal,
	})
	if err != nil {
		log.Errorf("level completed: %s", err.Error())
		return false, fmt.Errorf("recording completion: %w", err)
	}
	return true, nil
}
