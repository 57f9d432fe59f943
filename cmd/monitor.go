package cmd

import (
	"expvar"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
)

type monitor struct {
	addr    string
	info    *expvar.Map
	stopped chan struct{}
	server  *http.Server

	Units     *expvar.Int
	TimeBins  *expvar.Int
	BurnIn    *expvar.Int
	MaxSweeps *expvar.Int
	Sweeps    *expvar.Int
	RunTime   *expvar.Float

	LastLogProb       *expvar.Float
	LastMeanAbsError  *expvar.Float
	LastMaxAbsError   *expvar.Float
	LastMeanHellinger *expvar.Float
	LastMaxHellinger  *expvar.Float
}

// Start begins the monitor
func (m *monitor) Start() error {
	if m.info != nil {
		return errors.Errorf("BUG: You may only start the process monitor once")
	}

	m.info = expvar.NewMap("netglm-progress")
	m.stopped = make(chan struct{})
	m.server = &http.Server{
		Addr: m.addr,
	}

	// Help the user and redirect to the only thing currently available:
	// the handler from the expvar package
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/debug/vars", http.StatusTemporaryRedirect)
	})

	m.Units = expvar.NewInt("Units")
	m.TimeBins = expvar.NewInt("Time-Bins")
	m.BurnIn = expvar.NewInt("Burn-In")
	m.MaxSweeps = expvar.NewInt("Max-Sweeps")
	m.Sweeps = expvar.NewInt("Sweeps")
	m.RunTime = expvar.NewFloat("Run-Time")

	m.LastLogProb = expvar.NewFloat("Last-Log-Prob")
	m.LastMeanAbsError = expvar.NewFloat("Last-Mean-AE")
	m.LastMaxAbsError = expvar.NewFloat("Last-Max-AE")
	m.LastMeanHellinger = expvar.NewFloat("Last-Mean-Hellinger")
	m.LastMaxHellinger = expvar.NewFloat("Last-Max-Hellinger")

	// Actual server that will close the stopped channel on exit
	started := make(chan struct{})
	go func() {
		defer close(m.stopped)
		fmt.Fprintf(os.Stderr, "HTTP now available at %v (see debug/vars/)\n", m.server.Addr)
		close(started)
		m.server.ListenAndServe()
	}()

	<-started
	return nil
}

func (m *monitor) Stop() {
	if m.info == nil {
		return
	}

	m.server.Close()

	select {
	case <-m.stopped:
		fmt.Fprintf(os.Stderr, "HTTP Info Stopped\n")
	case <-time.After(2 * time.Second):
		fmt.Fprintf(os.Stderr, "HTTP would NOT stop: just continuing on\n")
	}
}
