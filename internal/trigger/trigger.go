// Package trigger decides whether a workflow fires for a repository event
// and, when it does, assembles the immutable run context.
package trigger

import (
	"context"
	"strings"

	"github.com/vk/pipegrid/internal/config"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/event"
	"github.com/vk/pipegrid/internal/run"
	"github.com/vk/pipegrid/internal/secrets"
)

const (
	branchRefPrefix = "refs/heads/"
	tagRefPrefix    = "refs/tags/"
)

// shortRef strips the refs/heads/ or refs/tags/ prefix from a full ref.
func shortRef(ref string) string {
	ref = strings.TrimPrefix(ref, branchRefPrefix)
	ref = strings.TrimPrefix(ref, tagRefPrefix)
	return ref
}

// Evaluate decides whether the workflow fires for the given event. When it
// does, it returns the run context; otherwise it returns (nil, false),
// which is a decision, not an error.
//
// Pull request runs check out the head repository and ref, and a pull
// request originating from a fork gets an empty secret store.
func Evaluate(ctx context.Context, wf *config.Workflow, ev *event.Event, sec *secrets.Store) (*run.Context, bool) {
	logger := ctxlog.FromContext(ctx).With("workflow", wf.Name, "event", string(ev.Kind))

	spec := wf.Triggers
	if spec == nil {
		logger.Debug("Workflow declares no triggers, does not fire.")
		return nil, false
	}

	switch ev.Kind {
	case event.Push:
		if spec.Push == nil {
			return nil, false
		}
		branch := shortRef(ev.Ref)
		if len(spec.Push.Branches) > 0 && !matchAny(spec.Push.Branches, branch) {
			logger.Debug("Branch did not match any include pattern.", "branch", branch)
			return nil, false
		}
		if matchAny(spec.Push.BranchesIgnore, branch) {
			logger.Debug("Branch matched an ignore pattern.", "branch", branch)
			return nil, false
		}
		return run.NewContext(wf.Name, ev, ev.Repository, ev.Ref, sec, false), true

	case event.Tag:
		if spec.Tag == nil {
			return nil, false
		}
		tag := shortRef(ev.Ref)
		if len(spec.Tag.Tags) > 0 && !matchAny(spec.Tag.Tags, tag) {
			logger.Debug("Tag did not match any include pattern.", "tag", tag)
			return nil, false
		}
		if matchAny(spec.Tag.TagsIgnore, tag) {
			logger.Debug("Tag matched an ignore pattern.", "tag", tag)
			return nil, false
		}
		return run.NewContext(wf.Name, ev, ev.Repository, ev.Ref, sec, false), true

	case event.PullRequest:
		if spec.PullRequest == nil {
			return nil, false
		}
		pr := ev.PullRequest
		if len(spec.PullRequest.Types) > 0 && !contains(spec.PullRequest.Types, pr.Action) {
			logger.Debug("PR activity type not listed.", "action", pr.Action)
			return nil, false
		}
		base := shortRef(ev.Ref)
		if len(spec.PullRequest.Branches) > 0 && !matchAny(spec.PullRequest.Branches, base) {
			logger.Debug("PR base branch did not match.", "branch", base)
			return nil, false
		}
		if matchAny(spec.PullRequest.BranchesIgnore, base) {
			logger.Debug("PR base branch matched an ignore pattern.", "branch", base)
			return nil, false
		}

		// The checkout target is the head of the proposed change. Secret
		// access is revoked entirely when the head lives in a fork.
		restricted := ev.FromFork()
		repo := pr.HeadRepo
		if repo == "" {
			repo = ev.Repository
		}
		if restricted {
			logger.Info("Fork pull request detected, secrets are restricted for this run.", "head_repo", pr.HeadRepo)
		}
		return run.NewContext(wf.Name, ev, repo, pr.HeadRef, sec, restricted), true

	case event.Dispatch:
		if !spec.Dispatch {
			return nil, false
		}
		return run.NewContext(wf.Name, ev, ev.Repository, ev.Ref, sec, false), true
	}

	return nil, false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
