package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/i5heu/sealdex/pkg/types"
)

// stateFile is the on-disk form of the head table. Keywords are arbitrary
// byte strings, so the map keys are base64; the head fields are hex like
// everywhere else in the protocol.
type stateFile struct {
	Heads map[string]stateHead `json:"heads"`
}

type stateHead struct {
	HeadKey  string `json:"headKey"`
	HeadAddr string `json:"headAddr"`
}

func (c *Client) loadState() error {
	data, err := os.ReadFile(c.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", ErrState, c.statePath, err)
	}

	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrState, c.statePath, err)
	}

	for encodedKeyword, sh := range sf.Heads {
		keyword, err := base64.StdEncoding.DecodeString(encodedKeyword)
		if err != nil {
			return fmt.Errorf("%w: keyword entry %q: %v", ErrState, encodedKeyword, err)
		}
		headKey, err := types.KeyFromHex(sh.HeadKey)
		if err != nil {
			return fmt.Errorf("%w: head key for %q: %v", ErrState, encodedKeyword, err)
		}
		headAddr, err := types.AddressFromHex(sh.HeadAddr)
		if err != nil {
			return fmt.Errorf("%w: head address for %q: %v", ErrState, encodedKeyword, err)
		}
		c.heads[string(keyword)] = head{Key: headKey, Addr: headAddr}
	}

	c.log.WithField("keywords", len(c.heads)).Debug("client state loaded")
	return nil
}

// saveStateLocked writes the head table atomically: the new state goes to
// a temp file in the same directory, is fsynced, then renamed over the
// old file. A crash at any point leaves either the old or the new state,
// never a torn file. The caller holds c.mu.
func (c *Client) saveStateLocked() error {
	sf := stateFile{Heads: make(map[string]stateHead, len(c.heads))}
	for keyword, h := range c.heads {
		sf.Heads[base64.StdEncoding.EncodeToString([]byte(keyword))] = stateHead{
			HeadKey:  h.Key.String(),
			HeadAddr: h.Addr.String(),
		}
	}

	data, err := json.MarshalIndent(&sf, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encode state: %v", ErrState, err)
	}

	dir := filepath.Dir(c.statePath)
	tmp, err := os.CreateTemp(dir, ".sealdex-state-*")
	if err != nil {
		return fmt.Errorf("%w: create temp state: %v", ErrState, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write temp state: %v", ErrState, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: sync temp state: %v", ErrState, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close temp state: %v", ErrState, err)
	}

	if err := os.Rename(tmpName, c.statePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replace state: %v", ErrState, err)
	}
	return nil
}
