package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/xirelogy/go-qcvm"
	"github.com/xirelogy/go-qcvm/internal/asm"
	"github.com/xirelogy/go-qcvm/internal/netmsg"
	"github.com/xirelogy/go-qcvm/internal/progs"
	"github.com/xirelogy/go-qcvm/internal/stats"
)

// Solid values used by the demo level.
const (
	solidNot     = 0
	solidTrigger = 1
)

// buildDemoImage assembles a tiny server program: worldspawn sets the secret
// totals and changelevel starts the intermission.
func buildDemoImage(total, found float32) ([]byte, error) {
	b := asm.New("demo.qc")
	running := b.Float("intermission_running", 0)
	one := b.Float("one", 1)
	totalK := b.Float("demo_total", total)
	foundK := b.Float("demo_found", found)

	f := b.Function("worldspawn", nil, 0)
	f.Op(progs.OP_STORE_F, totalK, progs.GlobalTotalSecrets, 0)
	f.Op(progs.OP_STORE_F, foundK, progs.GlobalFoundSecrets, 0)
	f.Done()

	f = b.Function("changelevel", nil, 0)
	f.Op(progs.OP_STORE_F, one, running, 0)
	f.Done()

	f = b.Function("StartFrame", nil, 0)
	f.Done()

	prog, err := b.Program()
	if err != nil {
		return nil, err
	}
	return progs.MarshalImage(prog)
}

type demoLevel struct {
	mapName string
	game    string
	skill   int
	secrets [][3]float32
	found   []int
}

func (d demoLevel) run(cmd *cobra.Command, rec *stats.Recorder) error {
	out := cmd.OutOrStdout()
	image, err := buildDemoImage(float32(len(d.secrets)), float32(len(d.found)))
	if err != nil {
		return err
	}

	var sent []byte
	sv, err := qcvm.NewContext(qcvm.Server, image, qcvm.Options{
		RunawayLimit: cfg.VM.RunawayLimit,
		MaxEntities:  cfg.VM.MaxEntities,
		Multicast: func(msg []byte) error {
			sent = append([]byte(nil), msg...)
			return nil
		},
	})
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	sv.NewLevel(d.skill)
	if err := sv.Execute(ctx, "worldspawn"); err != nil {
		return err
	}
	sv.SetActive(true)

	player, err := sv.SpawnEntity()
	if err != nil {
		return err
	}
	sv.SetPlayers([]qcvm.PlayerSlot{{Active: true, Entity: player}})

	triggers := make([]int, len(d.secrets))
	for i, mins := range d.secrets {
		e, err := sv.SpawnEntity()
		if err != nil {
			return err
		}
		sv.SetEntityFloat(e, progs.FieldSolid, solidTrigger)
		sv.SetEntityVector(e, progs.FieldMins, mins)
		sv.RecordSecret(uint16(i), mins)
		if !sv.TagSecret(e) {
			return fmt.Errorf("secret %d was not tagged", i)
		}
		triggers[i] = e
	}

	mc := stats.MapContext{MapName: d.mapName, Game: d.game, SecretCount: uint32(len(d.secrets))}
	for _, i := range d.found {
		sv.SetEntityFloat(triggers[i], progs.FieldSolid, solidNot)
		if rec != nil && rec.Enabled {
			if err := rec.DB.InsertSecretFound(mc, uint16(i)); err != nil {
				return err
			}
		}
		fmt.Fprintf(out, "secret %d found\n", i)
	}

	start := time.Now()
	if err := sv.Execute(ctx, "StartFrame"); err != nil {
		return err
	}
	if err := sv.Execute(ctx, "changelevel"); err != nil {
		return err
	}
	if err := sv.Execute(ctx, "StartFrame"); err != nil {
		return err
	}
	if !sv.LevelCompleted() {
		return fmt.Errorf("level did not complete")
	}
	return d.report(out, sent, mc, rec, uint32(time.Since(start).Milliseconds()))
}

func (d demoLevel) report(out io.Writer, msg []byte, mc stats.MapContext, rec *stats.Recorder, elapsed uint32) error {
	fmt.Fprintf(out, "level complete message: %s\n", hex.EncodeToString(msg))
	lc, err := netmsg.ParseLevelComplete(msg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "skill %d, secrets found %v\n", lc.Skill, lc.Secrets)
	if rec == nil {
		return nil
	}
	written, err := rec.HandleLevelComplete(msg, stats.Session{
		MapContext:    mc,
		GameType:      "sp",
		Players:       1,
		CompletedTime: elapsed,
	})
	if err != nil {
		return err
	}
	if written {
		fmt.Fprintf(out, "completion recorded for %s\n", mc.MapName)
	}
	return nil
}

func newDemoCmd() *cobra.Command {
	var (
		level  demoLevel
		record bool
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Play a synthetic level through to intermission",
		Long: `Builds a small server program, places secret triggers, finds some of
them and completes the level. The level-complete message is decoded as a
client would, and recorded to the stats database when enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level.secrets = [][3]float32{{-64, 128, 0}, {512, 40, -24}, {1024, 1024, 96}}
			var rec *stats.Recorder
			if record || cfg.Stats.Enabled {
				db, err := stats.Open(cfg.StatsPath())
				if err != nil {
					return err
				}
				defer db.Close()
				rec = &stats.Recorder{DB: db, Enabled: true}
			}
			for _, i := range level.found {
				if i < 0 || i >= len(level.secrets) {
					return fmt.Errorf("secret %d out of range", i)
				}
			}
			return level.run(cmd, rec)
		},
	}
	cmd.Flags().StringVar(&level.mapName, "map", "e1m1", "map name")
	cmd.Flags().StringVar(&level.game, "game", "id1", "game directory")
	cmd.Flags().IntVar(&level.skill, "skill", 1, "skill level")
	cmd.Flags().IntSliceVar(&level.found, "found", []int{0, 2}, "secrets the player finds")
	cmd.Flags().BoolVar(&record, "record", false, "record the completion in the stats database")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var game string
	cmd := &cobra.Command{
		Use:   "stats <map>",
		Short: "Show recorded completions and secrets for a map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := stats.Open(cfg.StatsPath())
			if err != nil {
				return err
			}
			defer db.Close()
			out := cmd.OutOrStdout()
			found, err := db.SecretsFound(args[0], game)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s (%s): secrets ever found %v\n", args[0], game, found)
			completions, err := db.Completions(args[0], game)
			if err != nil {
				return err
			}
			for _, c := range completions {
				fmt.Fprintf(out, "%s skill %d time %dms secrets %v\n",
					c.Timestamp.Format(time.RFC3339), c.Skill, c.CompletedTime, c.SecretsFound)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&game, "game", "id1", "game directory")
	return cmd
}
