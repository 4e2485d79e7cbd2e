//go:build linux

package hoststats

import (
	"errors"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

type procSource struct {
	fs procfs.FS
}

// newPlatformSource reads /proc, or procRoot when set (tests point it at a fixture tree).
func newPlatformSource(procRoot string) (source, error) {
	if procRoot == "" {
		procRoot = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, err
	}
	return &procSource{fs: fs}, nil
}

func (p *procSource) cpu() (cpuTimes, error) {
	st, err := p.fs.Stat()
	if err != nil {
		return cpuTimes{}, err
	}
	c := st.CPUTotal
	total := c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
	return cpuTimes{busy: total - c.Idle - c.Iowait, total: total}, nil
}

func (p *procSource) memory() (memInfo, error) {
	mi, err := p.fs.Meminfo()
	if err != nil {
		return memInfo{}, err
	}
	if mi.MemTotal == nil || mi.MemFree == nil {
		return memInfo{}, errors.New("hoststats: meminfo missing MemTotal or MemFree")
	}
	// meminfo reports kB.
	return memInfo{free: *mi.MemFree * 1024, total: *mi.MemTotal * 1024}, nil
}

func (p *procSource) osVersion() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return ""
	}
	return unix.ByteSliceToString(u.Release[:])
}
