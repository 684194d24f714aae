package audio

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.uber.org/atomic"

	"fablecast/server/internal/models"
	"fablecast/server/internal/storage"
)

// AudioStore is the slice of persistence the pipeline needs.
type AudioStore interface {
	UpdateAudioStatus(id, status, assetPath, errMsg string) error
}

// StatusListener is notified as rows move through the pipeline. Optional.
type StatusListener interface {
	AudioStatusChanged(episodeID, audioID, status string)
}

// Job is one EpisodeAudio row to realize.
type Job struct {
	AudioID   string
	EpisodeID string
	Cue       models.AudioCue
}

// Pipeline consumes realized cues and drives them through the synthesis
// provider and the asset store. Failures are isolated per row: the row is
// marked failed and the episode's narrative flow is never blocked.
type Pipeline struct {
	jobs      chan Job
	synth     Synthesizer
	narrator  Narrator
	cache     *Cache
	assets    *storage.AssetStore
	store     AudioStore
	listener  StatusListener
	workers   int
	running   atomic.Bool
	processed atomic.Int64
	failed    atomic.Int64
}

func NewPipeline(synth Synthesizer, assets *storage.AssetStore, store AudioStore, workers, queueSize int) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pipeline{
		jobs:    make(chan Job, queueSize),
		synth:   synth,
		assets:  assets,
		store:   store,
		workers: workers,
	}
}

// SetNarrator enables narration cues. Without one they fail per row.
func (p *Pipeline) SetNarrator(n Narrator) {
	p.narrator = n
}

// SetCache enables reuse of previously synthesized assets for identical cues.
func (p *Pipeline) SetCache(c *Cache) {
	p.cache = c
}

// SetListener attaches an optional status listener (e.g. the progress hub).
func (p *Pipeline) SetListener(l StatusListener) {
	p.listener = l
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx)
	}
}

// Enqueue submits a job without blocking. A full queue is reported to the
// caller, who marks the row failed; audio is decorative and dropping is safe.
func (p *Pipeline) Enqueue(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return fmt.Errorf("audio queue is full")
	}
}

// Processed returns the number of completed jobs, failures included.
func (p *Pipeline) Processed() int64 {
	return p.processed.Load()
}

// Failed returns the number of failed jobs.
func (p *Pipeline) Failed() int64 {
	return p.failed.Load()
}

func (p *Pipeline) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.process(ctx, job)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, job Job) {
	start := time.Now()
	p.setStatus(job, models.AudioStatusGenerating, "", "")

	// Identical cues reuse the already-synthesized asset.
	if p.cache != nil {
		if path, ok := p.cache.Get(cueKey(job.Cue)); ok {
			p.processed.Inc()
			p.setStatus(job, models.AudioStatusReady, path, "")
			log.Printf("[AudioPipeline] %s served from cache", job.AudioID)
			return
		}
	}

	data, err := p.synthesize(ctx, job.Cue)
	if err != nil {
		p.failed.Inc()
		p.processed.Inc()
		log.Printf("[AudioPipeline] synthesis failed for %s: %v", job.AudioID, err)
		p.setStatus(job, models.AudioStatusFailed, "", err.Error())
		return
	}

	path, err := p.assets.Put(ctx, job.AudioID, data, "mp3")
	if err != nil {
		p.failed.Inc()
		p.processed.Inc()
		log.Printf("[AudioPipeline] asset upload failed for %s: %v", job.AudioID, err)
		p.setStatus(job, models.AudioStatusFailed, "", err.Error())
		return
	}

	if p.cache != nil {
		p.cache.Put(cueKey(job.Cue), path, int64(len(data)))
	}

	p.processed.Inc()
	p.setStatus(job, models.AudioStatusReady, path, "")
	log.Printf("[AudioPipeline] %s ready in %s", job.AudioID, time.Since(start).Round(time.Millisecond))
}

// cueKey fingerprints a cue by everything that affects its synthesized bytes.
func cueKey(cue models.AudioCue) string {
	return fmt.Sprintf("%s|%s|%d|%.2f|%.2f|%t",
		cue.Type, cue.Params.Prompt, cue.Params.DurationMs,
		cue.Params.DurationSeconds, cue.Params.PromptInfluence, cue.Params.Loop)
}

func (p *Pipeline) synthesize(ctx context.Context, cue models.AudioCue) ([]byte, error) {
	switch cue.Type {
	case models.CueTypeMusic:
		return p.synth.ComposeMusic(ctx, cue.Params.Prompt, cue.Params.DurationMs)
	case models.CueTypeSFX:
		return p.synth.SynthesizeSoundEffect(ctx, cue.Params.Prompt, cue.Params.DurationSeconds, cue.Params.PromptInfluence, cue.Params.Loop)
	case models.CueTypeNarration:
		if p.narrator == nil {
			return nil, fmt.Errorf("no narration provider configured")
		}
		return p.narrator.Narrate(ctx, cue.Params.Prompt)
	default:
		return nil, fmt.Errorf("unknown cue type %q", cue.Type)
	}
}

func (p *Pipeline) setStatus(job Job, status, path, errMsg string) {
	if err := p.store.UpdateAudioStatus(job.AudioID, status, path, errMsg); err != nil {
		log.Printf("[AudioPipeline] failed to record status %s for %s: %v", status, job.AudioID, err)
	}
	if p.listener != nil {
		p.listener.AudioStatusChanged(job.EpisodeID, job.AudioID, status)
	}
}
