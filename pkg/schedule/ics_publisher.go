package schedule

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klokku/eventkit/internal/utils"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// ICSPublisher writes the iCalendar feed of all events to a file, either on
// demand or on a cron schedule.
type ICSPublisher struct {
	schedule *Service
	clock    utils.Clock
	path     string
	cron     *cron.Cron
}

func NewICSPublisher(s *Service, clock utils.Clock, path string) *ICSPublisher {
	return &ICSPublisher{
		schedule: s,
		clock:    clock,
		path:     path,
	}
}

// Publish replaces the file atomically, readers never see a partial feed.
func (p *ICSPublisher) Publish() error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create ics directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".calendar-*.ics")
	if err != nil {
		return fmt.Errorf("failed to create ics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteICS(tmp, p.schedule.Events(), p.clock.Now()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ics file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write ics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("failed to publish ics file: %w", err)
	}
	log.Debugf("Published ics feed to %s", p.path)
	return nil
}

// Start publishes once and then on every tick of the cron spec.
func (p *ICSPublisher) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := p.Publish(); err != nil {
			log.Errorf("scheduled ics export failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid ics schedule %q: %w", spec, err)
	}
	if err := p.Publish(); err != nil {
		return err
	}
	p.cron = c
	c.Start()
	log.Infof("Publishing ics feed to %s on schedule %q", p.path, spec)
	return nil
}

// Stop waits for a running export to finish.
func (p *ICSPublisher) Stop() {
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
	p.cron = nil
}
