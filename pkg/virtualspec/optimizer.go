package virtualspec

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bitechdev/VirtualSpec/pkg/common"
	"github.com/bitechdev/VirtualSpec/pkg/logger"
	"github.com/bitechdev/VirtualSpec/pkg/metrics"
	"github.com/bitechdev/VirtualSpec/pkg/tracing"
)

// Optimizer ties the pipeline together: discover the lookup list from the
// serializer, check completeness, then compile the tree onto a queryset. It
// holds no request state and is safe to share across requests.
type Optimizer struct {
	serializer *Serializer
	vm         *VirtualModel
}

// NewOptimizer pairs a serializer with the virtual model that serves it.
func NewOptimizer(serializer *Serializer, vm *VirtualModel) *Optimizer {
	return &Optimizer{serializer: serializer, vm: vm}
}

// Optimize runs discovery, validation and compilation on the given base
// queryset. On success it returns the augmented queryset and the resolved
// lookup list (the list the accessor guard should be built from). On a
// completeness problem the input queryset is returned untouched.
func (o *Optimizer) Optimize(ctx context.Context, q common.SelectQuery, rc *RequestContext) (common.SelectQuery, []string, error) {
	ctx, span := tracing.StartSpan(ctx, "virtualspec.optimize",
		attribute.String("virtual_model", o.vm.Name()),
		attribute.String("serializer", o.serializer.SerializerName()),
	)
	defer span.End()
	start := time.Now()

	lookups, problems := NewLookupFinder(o.serializer, o.vm).Find()
	if len(problems) > 0 {
		err := problems[0]
		metrics.GetProvider().RecordValidationFailure(o.vm.Name(), o.serializer.SerializerName())
		tracing.RecordError(ctx, err)
		logger.Error("Validation failed for %s against %s: %v",
			o.serializer.SerializerName(), o.vm.Name(), err)
		return q, nil, err
	}
	tracing.SetAttributes(ctx, attribute.Int("lookup_count", len(lookups)))

	newQ, err := o.vm.GetOptimizedQueryset(q, lookups, rc)
	metrics.GetProvider().RecordOptimization(o.vm.Name(), len(lookups), time.Since(start), err)
	if err != nil {
		tracing.RecordError(ctx, err)
		return q, lookups, err
	}
	return newQ, lookups, nil
}

// OptimizeWithLookups compiles a caller-supplied lookup list, bypassing
// serializer discovery. The list is validated against the tree first; nil
// resolves every declared field.
func (o *Optimizer) OptimizeWithLookups(ctx context.Context, q common.SelectQuery, lookupList []string, rc *RequestContext) (common.SelectQuery, error) {
	ctx, span := tracing.StartSpan(ctx, "virtualspec.optimize_lookups",
		attribute.String("virtual_model", o.vm.Name()),
		attribute.Int("lookup_count", len(lookupList)),
	)
	defer span.End()
	start := time.Now()

	if err := ValidateLookupList(o.vm, lookupList); err != nil {
		metrics.GetProvider().RecordValidationFailure(o.vm.Name(), "")
		tracing.RecordError(ctx, err)
		return q, err
	}

	newQ, err := o.vm.GetOptimizedQueryset(q, lookupList, rc)
	metrics.GetProvider().RecordOptimization(o.vm.Name(), len(lookupList), time.Since(start), err)
	if err != nil {
		tracing.RecordError(ctx, err)
		return q, err
	}
	return newQ, nil
}

// LookupList exposes discovery alone, for callers that cache the plan or
// build guards ahead of scanning.
func (o *Optimizer) LookupList() ([]string, error) {
	return NewLookupFinder(o.serializer, o.vm).FindLookupList()
}
