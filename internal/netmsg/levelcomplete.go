package netmsg

import "fmt"

// SvcmxLevelComplete is the extension message sent once per level when
// every active player has reached the intermission.
const SvcmxLevelComplete byte = 0x3c

// LevelComplete lists the secrets the players found on the level.
type LevelComplete struct {
	Skill   int
	Secrets []uint16
}

// Write appends the message: opcode byte, skill and count as shorts, then
// one little-endian uint16 per secret index.
func (lc LevelComplete) Write(b *SizeBuf) error {
	if err := b.WriteByte(SvcmxLevelComplete); err != nil {
		return err
	}
	if err := b.WriteShort(lc.Skill); err != nil {
		return err
	}
	if err := b.WriteShort(len(lc.Secrets)); err != nil {
		return err
	}
	for _, s := range lc.Secrets {
		if err := b.WriteShort(int(s)); err != nil {
			return err
		}
	}
	return nil
}

// ParseLevelComplete decodes a level-complete message including its opcode.
func ParseLevelComplete(data []byte) (LevelComplete, error) {
	r := NewReader(data)
	op, err := r.ReadByte()
	if err != nil {
		return LevelComplete{}, err
	}
	if op != SvcmxLevelComplete {
		return LevelComplete{}, fmt.Errorf("unexpected message opcode 0x%02x", op)
	}
	return ReadLevelComplete(r)
}

// ReadLevelComplete decodes the body of a level-complete message after the
// opcode byte has been consumed.
func ReadLevelComplete(r *Reader) (LevelComplete, error) {
	skill, err := r.ReadShort()
	if err != nil {
		return LevelComplete{}, fmt.Errorf("level complete skill: %w", err)
	}
	count, err := r.ReadShort()
	if err != nil {
		return LevelComplete{}, fmt.Errorf("level complete count: %w", err)
	}
	if count < 0 {
		return LevelComplete{}, fmt.Errorf("level complete: negative secret count %d", count)
	}
	lc := LevelComplete{Skill: int(skill), Secrets: make([]uint16, 0, count)}
	for i := 0; i < int(count); i++ {
		s, err := r.ReadUint16()
		if err != nil {
			return LevelComplete{}, fmt.Errorf("level complete secret %d: %w", i, err)
		}
		lc.Secrets = append(lc.Secrets, s)
	}
	return lc, nil
}
