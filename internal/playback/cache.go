package playback

import "github.com/lutrinapp/lutrin/internal/audio"

// CacheState is the pre-fetch state of one chapter.
type CacheState int

// Chapter cache states.
const (
	NotRequested CacheState = iota
	Pending
	Ready
	Empty  // blank chapter, never synthesized
	Failed // generation failed; retried only on an explicit request
)

func (s CacheState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Empty:
		return "empty"
	case Failed:
		return "failed"
	default:
		return "not-requested"
	}
}

// MarshalText renders the state in snapshots.
func (s CacheState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type entry struct {
	state CacheState
	clip  *audio.Clip
	err   error
	// done is closed when a Pending generation settles.
	done chan struct{}
}

// release drops the entry's clip and forgets it.
func (e *entry) release() error {
	var err error
	if e.clip != nil {
		err = e.clip.Release()
	}
	*e = entry{}
	return err
}
