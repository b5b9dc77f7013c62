package reconcile

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/palletdock/internal/artifact"
	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/storage"

	"golang.org/x/sync/errgroup"
)

// ArtifactSink 标签与发运清单输出
type ArtifactSink interface {
	WriteLabel(ctx context.Context, label artifact.LabelData) (string, error)
	WriteManifest(ctx context.Context, manifest artifact.ManifestData) (string, error)
}

// StoreSink 渲染 PDF 并写入产物存储
type StoreSink struct {
	store        storage.Store
	labelBaseURL string
}

// NewStoreSink 创建基于存储的产物输出
func NewStoreSink(store storage.Store, labelBaseURL string) (*StoreSink, error) {
	if store == nil {
		return nil, errors.New("artifact store is nil")
	}
	return &StoreSink{store: store, labelBaseURL: labelBaseURL}, nil
}

// WriteLabel 渲染单张机器标签
func (s *StoreSink) WriteLabel(ctx context.Context, label artifact.LabelData) (string, error) {
	label = label.Normalize(s.labelBaseURL)
	body, err := artifact.RenderLabels([]artifact.LabelData{label})
	if err != nil {
		return "", err
	}
	key := storage.LabelKey(label.PalletNumber, label.ServiceTag)
	if err := s.store.Put(ctx, key, bytes.NewReader(body), artifact.ContentTypePDF); err != nil {
		return "", err
	}
	return key, nil
}

// WriteManifest 渲染托盘发运清单
func (s *StoreSink) WriteManifest(ctx context.Context, manifest artifact.ManifestData) (string, error) {
	body, err := artifact.RenderManifest(manifest)
	if err != nil {
		return "", err
	}
	key := storage.ManifestKey(manifest.PalletNumber)
	if err := s.store.Put(ctx, key, bytes.NewReader(body), artifact.ContentTypePDF); err != nil {
		return "", err
	}
	return key, nil
}

// artifactRunner 收集已确认操作的产物任务，变更全部执行完后再并发（有上限）生成，失败只记录不影响提交
type artifactRunner struct {
	ctx     context.Context
	session *Session
	draft   Snapshot
	jobs    []func()

	mu     sync.Mutex
	keys   []string
	errors []error
}

func newArtifactRunner(ctx context.Context, session *Session, draft Snapshot) *artifactRunner {
	return &artifactRunner{ctx: ctx, session: session, draft: draft}
}

// label 为已确认的移动生成标签，机器详情查询失败时使用占位值
func (r *artifactRunner) label(op Operation) {
	if r.session.sink == nil {
		return
	}
	pallet := r.draft.Find(op.ToPallet)
	r.jobs = append(r.jobs, func() {
		data := artifact.LabelData{ServiceTag: op.ServiceTag, PalletNumber: op.ToPallet}
		if pallet != nil {
			data.Shape = pallet.Shape
			data.FactoryCode = pallet.FactoryCode
		}
		if system := r.lookup(op.ServiceTag); system != nil {
			data.DPN = system.DPN
			data.Config = system.Config
			data.DellCustomer = system.DellCustomer
			data.PPID = system.PPID
		}
		r.write(func(ctx context.Context) (string, error) {
			return r.session.sink.WriteLabel(ctx, data)
		}, "label", op.ServiceTag)
	})
}

// manifest 为已确认的发运生成清单
func (r *artifactRunner) manifest(op Operation) {
	if r.session.sink == nil {
		return
	}
	pallet := r.draft.Find(op.PalletNumber)
	if pallet == nil {
		return
	}
	releasedAt := r.session.now()
	r.jobs = append(r.jobs, func() {
		data := artifact.ManifestData{
			PalletNumber: pallet.Number,
			ReleasedAt:   releasedAt,
			DPN:          pallet.DPN,
			FactoryCode:  pallet.FactoryCode,
		}
		for _, slot := range pallet.Slots {
			if slot == nil || slot.ServiceTag == "" {
				continue
			}
			row := artifact.ManifestSystem{ServiceTag: slot.ServiceTag, PPID: slot.PPID, DOANumber: slot.DOANumber}
			if system := r.lookup(slot.ServiceTag); system != nil {
				if system.PPID != "" {
					row.PPID = system.PPID
				}
				if system.DOANumber != nil && *system.DOANumber != "" {
					row.DOANumber = *system.DOANumber
				}
			}
			data.Systems = append(data.Systems, row)
		}
		r.write(func(ctx context.Context) (string, error) {
			return r.session.sink.WriteManifest(ctx, data)
		}, "manifest", pallet.Number)
	})
}

func (r *artifactRunner) lookup(serviceTag string) *System {
	var system *System
	err := r.session.step(r.ctx, func(ctx context.Context) error {
		var err error
		system, err = r.session.remote.GetSystem(ctx, serviceTag)
		return err
	})
	if err != nil {
		logger.Warnw("reconcile_artifact_system_lookup_failed", "service_tag", serviceTag, "error", err)
		return nil
	}
	return system
}

func (r *artifactRunner) write(fn func(context.Context) (string, error), kind, target string) {
	key, err := fn(r.ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		logger.Warnw("reconcile_artifact_failed", "kind", kind, "target", target, "error", err)
		r.errors = append(r.errors, err)
		return
	}
	r.keys = append(r.keys, key)
}

// run 执行收集到的产物任务并等待全部完成
func (r *artifactRunner) run() ([]string, []error) {
	group := &errgroup.Group{}
	group.SetLimit(r.session.artifactConcurrency)
	for _, job := range r.jobs {
		group.Go(func() error {
			job()
			return nil
		})
	}
	_ = group.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys, r.errors
}
