//go:build !linux

package hoststats

import "errors"

var errUnsupported = errors.New("hoststats: host statistics are only available on linux")

type unsupportedSource struct{}

func newPlatformSource(string) (source, error) {
	return unsupportedSource{}, nil
}

func (unsupportedSource) cpu() (cpuTimes, error)   { return cpuTimes{}, errUnsupported }
func (unsupportedSource) memory() (memInfo, error) { return memInfo{}, errUnsupported }
func (unsupportedSource) osVersion() string        { return "" }
