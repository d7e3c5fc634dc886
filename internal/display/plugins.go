package display

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hanpama/viewexec/internal/options"
)

// DefaultDisplay is the master display every view carries.
type DefaultDisplay struct{ Base }

// PageDisplay is served at a path and owns the HTTP status of the response.
type PageDisplay struct{ Base }

func (d *PageDisplay) DefineOptions() options.Schema {
	return d.Base.DefineOptions().Merge(options.Schema{"path": options.Leaf("")})
}

func (d *PageDisplay) HasPath() bool         { return true }
func (d *PageDisplay) UsesBreadcrumb() bool  { return true }
func (d *PageDisplay) UsesAttachments() bool { return true }

// Execute builds first so failures turn into 404 and 403 responses before
// anything renders.
func (d *PageDisplay) Execute(ctx context.Context) (*Output, error) {
	if err := d.exec.Build(ctx, ""); err != nil {
		return nil, err
	}
	switch {
	case d.exec.Failed():
		d.exec.Response().Status = http.StatusNotFound
		return nil, nil
	case d.exec.Denied():
		d.exec.Response().Status = http.StatusForbidden
		return nil, nil
	}
	return d.exec.Render(ctx, "")
}

func (d *PageDisplay) Validate() []error {
	errs := d.Base.Validate()
	if d.opts.String("path") == "" {
		errs = append(errs, fmt.Errorf("display %s uses a path but the path is undefined", d.id))
	}
	return errs
}

// BlockDisplay renders without a path, optionally nothing when empty.
type BlockDisplay struct{ Base }

func (d *BlockDisplay) DefineOptions() options.Schema {
	return d.Base.DefineOptions().Merge(options.Schema{"block_hide_empty": options.Leaf(false)})
}

func (d *BlockDisplay) UsesAttachments() bool { return true }

func (d *BlockDisplay) Execute(ctx context.Context) (*Output, error) {
	out, err := d.exec.Render(ctx, "")
	if err != nil || out == nil {
		return out, err
	}
	if d.opts.Bool("block_hide_empty") && len(out.Rows) == 0 && len(out.Summary) == 0 {
		return nil, nil
	}
	return out, nil
}

// AttachmentDisplay renders itself into other displays of the same view.
type AttachmentDisplay struct{ Base }

func (d *AttachmentDisplay) DefineOptions() options.Schema {
	return d.Base.DefineOptions().Merge(options.Schema{
		"displays":                options.Leaf(map[string]any{}),
		"attachment_position":     options.Leaf(AttachBefore),
		"inherit_arguments":       options.Leaf(true),
		"inherit_exposed_filters": options.Leaf(false),
		"inherit_pager":           options.Leaf(false),
		"pager": options.Nested(options.Schema{
			"type":    options.Leaf("some"),
			"options": options.Nested(options.Schema{"items_per_page": options.Leaf(10), "offset": options.Leaf(0)}),
		}),
	})
}

func (d *AttachmentDisplay) UsesExposed() bool {
	return d.opts.Bool("inherit_exposed_filters") && d.Base.UsesExposed()
}

// AttachTo runs this display in a fresh executor and hands its output to
// the parent when the parent display is one it attaches to.
func (d *AttachmentDisplay) AttachTo(ctx context.Context, parentDisplayID string) error {
	attached := false
	for _, id := range d.opts.Strings("displays") {
		if id == parentDisplayID {
			attached = true
		}
	}
	if !attached || !d.Access(d.exec.Account()) {
		return nil
	}
	child := d.exec.NewAttachment()
	defer child.Destroy()

	var args []string
	if d.opts.Bool("inherit_arguments") {
		args = d.exec.Args()
	}
	if d.opts.Bool("inherit_exposed_filters") {
		child.SetExposedInput(d.exec.ExposedInput())
	}
	if d.opts.Bool("inherit_pager") {
		if parent, ok := d.exec.DisplayHandler(parentDisplayID); ok {
			child.SetPagerSelection(parent.PluginSelection("pager"))
		}
	}
	out, err := child.ExecuteDisplay(ctx, d.id, args)
	if err != nil {
		return fmt.Errorf("attach %s to %s: %w", d.id, parentDisplayID, err)
	}
	if out == nil {
		return nil
	}
	switch d.opts.String("attachment_position") {
	case AttachAfter:
		d.exec.AddAttachment(AttachAfter, out)
	case AttachBoth:
		d.exec.AddAttachment(AttachBefore, out)
		d.exec.AddAttachment(AttachAfter, out)
	default:
		d.exec.AddAttachment(AttachBefore, out)
	}
	return nil
}

// RestExportDisplay serves serialized rows at a path.
type RestExportDisplay struct{ Base }

func (d *RestExportDisplay) DefineOptions() options.Schema {
	return d.Base.DefineOptions().Merge(options.Schema{
		"path": options.Leaf(""),
		"style": options.Nested(options.Schema{
			"type":    options.Leaf("serializer"),
			"options": options.Nested(options.Schema{}),
		}),
	})
}

func (d *RestExportDisplay) HasPath() bool { return true }

func (d *RestExportDisplay) Execute(ctx context.Context) (*Output, error) {
	out, err := d.exec.Render(ctx, "")
	if err != nil || out == nil {
		return out, err
	}
	if out.ContentType != "" {
		d.exec.Response().Header.Set("Content-Type", out.ContentType)
	}
	return out, nil
}
