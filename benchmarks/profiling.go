package benchmarks

import (
	"os"
	"path"
	"runtime"
	"runtime/pprof"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/zeu5/cartpole-dqn/util"
)

// startProfiling starts the CPU profile if requested and returns
// the function that stops it and writes the memory profile
func startProfiling(logger log.Logger) (func(), error) {
	if cpuprofile == "" && memprofile == "" {
		return func() {}, nil
	}
	if err := util.EnsureDir(saveFile); err != nil {
		return nil, err
	}

	var cpuFile *os.File
	if cpuprofile != "" {
		cpuProfPath := path.Join(saveFile, cpuprofile)
		level.Info(logger).Log("msg", "profiling CPU", "path", cpuProfPath)
		f, err := os.Create(cpuProfPath)
		if err != nil {
			return nil, errors.Wrap(err, "could not create CPU profile")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "could not start CPU profile")
		}
		cpuFile = f
	}

	return func() {
		if cpuFile != nil {
			pprof.StopCPUProfile()
			cpuFile.Close()
		}
		if memprofile == "" {
			return
		}
		memProfPath := path.Join(saveFile, memprofile)
		level.Info(logger).Log("msg", "profiling memory", "path", memProfPath)
		f, err := os.Create(memProfPath)
		if err != nil {
			level.Error(logger).Log("msg", "could not create memory profile", "err", err)
			return
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			level.Error(logger).Log("msg", "could not write memory profile", "err", err)
		}
	}, nil
}
