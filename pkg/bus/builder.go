package bus

import (
	"fmt"
	"reflect"
	"time"
)

// Builder accumulates a BusSettings tree fluently (orig §4.10). Zero value
// is not usable; construct with NewBuilder.
type Builder struct {
	settings BusSettings
	parent   *Builder
	children []*Builder
	provider func() (Transport, error)
}

// NewBuilder starts a builder for a bus named name.
func NewBuilder(name string) *Builder {
	return &Builder{settings: BusSettings{Name: name}}
}

// Produce declares a producer for messageType (orig §3 "Produce(type,
// {defaultPath, defaultTimeout?, keyProvider?, partitionProvider?,
// events})"). Pass the reflect.Type of the message type, e.g.
// Produce(reflect.TypeOf(OrderCreated{}), ...).
func (b *Builder) Produce(messageType reflect.Type, opts ProducerOptions) *Builder {
	b.settings.Producers = append(b.settings.Producers, ProducerSettings{
		MessageType:    messageType,
		ResponseType:   opts.ResponseType,
		Polymorphic:    opts.Polymorphic,
		DefaultPath:    opts.DefaultPath,
		DefaultTimeout: opts.DefaultTimeout,
		Events:         opts.Events,
		Attachments:    opts.Attachments,
	})
	return b
}

// ProducerOptions configures one Produce call.
type ProducerOptions struct {
	ResponseType   reflect.Type
	Polymorphic    bool
	DefaultPath    string
	DefaultTimeout time.Duration
	Events         EventHooks
	Attachments    map[string]any
}

// Consume declares a fire-and-forget consumer for messageType (orig §3
// "Consume(type, {path, group, instances, events, consumerFactory})").
func (b *Builder) Consume(messageType reflect.Type, path, group string, instances int, factory func() Consumer) *Builder {
	b.settings.Consumers = append(b.settings.Consumers, ConsumerSettings{
		MessageType:     messageType,
		Path:            path,
		Group:           group,
		Instances:       instances,
		ConsumerFactory: factory,
		IsHandler:       false,
	})
	return b
}

// Handle declares a request/response handler for requestType producing
// responseType (orig §3 "Handle(req, resp, {path, group, instances,
// handlerFactory})").
func (b *Builder) Handle(requestType, responseType reflect.Type, path, group string, instances int, factory func() Handler) *Builder {
	b.settings.Consumers = append(b.settings.Consumers, ConsumerSettings{
		MessageType:     requestType,
		ResponseType:    responseType,
		Path:            path,
		Group:           group,
		Instances:       instances,
		HandlerFactory:  factory,
		IsHandler:       true,
	})
	return b
}

// ExpectRequestResponses configures the bus-level reply path used by Send.
func (b *Builder) ExpectRequestResponses(rr RequestResponseSettings) *Builder {
	b.settings.RequestResponse = rr
	return b
}

// WithSerializer sets the Serializer port.
func (b *Builder) WithSerializer(s Serializer) *Builder {
	b.settings.Serializer = s
	return b
}

// WithDependencyResolver sets the DependencyResolver port.
func (b *Builder) WithDependencyResolver(r DependencyResolver) *Builder {
	b.settings.DependencyResolver = r
	return b
}

// WithMessageTypeResolver sets the MessageTypeResolver port.
func (b *Builder) WithMessageTypeResolver(r MessageTypeResolver) *Builder {
	b.settings.MessageTypeResolver = r
	return b
}

// WithHeaderModifier installs a function run on every produced message's
// headers, after per-call headers are applied.
func (b *Builder) WithHeaderModifier(fn func(Headers)) *Builder {
	b.settings.HeaderModifier = fn
	return b
}

// WithGlobalHooks sets bus-wide produce/consume observation hooks.
func (b *Builder) WithGlobalHooks(hooks EventHooks) *Builder {
	b.settings.GlobalHooks = hooks
	return b
}

// WithInterceptors appends to the five global interceptor chains.
func (b *Builder) WithInterceptors(producer []ProducerInterceptor, publish []PublishInterceptor, send []SendInterceptor, consumer []ConsumerInterceptor, handler []HandlerInterceptor) *Builder {
	b.settings.ProducerInterceptors = append(b.settings.ProducerInterceptors, producer...)
	b.settings.PublishInterceptors = append(b.settings.PublishInterceptors, publish...)
	b.settings.SendInterceptors = append(b.settings.SendInterceptors, send...)
	b.settings.ConsumerInterceptors = append(b.settings.ConsumerInterceptors, consumer...)
	b.settings.HandlerInterceptors = append(b.settings.HandlerInterceptors, handler...)
	return b
}

// AutoStartConsumersEnabled toggles whether Start also registers every
// declared consumer.
func (b *Builder) AutoStartConsumersEnabled(enabled bool) *Builder {
	b.settings.AutoStartConsumers = enabled
	return b
}

// PerMessageScopeEnabled toggles per-message dependency scoping.
func (b *Builder) PerMessageScopeEnabled(enabled bool) *Builder {
	b.settings.PerMessageScope = enabled
	return b
}

// WithPendingRequestCapacity bounds in-flight Send calls; 0 means unbounded.
func (b *Builder) WithPendingRequestCapacity(n int) *Builder {
	b.settings.PendingRequestCapacity = n
	return b
}

// WithClock overrides the clock used by the pending-request registry.
// Tests inject a virtual clock here to drive deterministic timeout sweeps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.settings.Now = now
	return b
}

// AddChildBus registers a named child builder. When the child is built, the
// parent's settings are merged into the child's (child wins, via
// BusSettings.MergeFrom); the parent's own Build only validates its children.
func (b *Builder) AddChildBus(name string, child *Builder) *Builder {
	child.settings.Name = name
	child.parent = b
	b.children = append(b.children, child)
	return b
}

// WithProvider overrides transport construction: instead of Build(transport)
// receiving a caller-supplied Transport, providerFn is invoked to produce
// one. Used when child-bus transports must be constructed lazily from
// shared configuration (orig §6 "WithProvider(busFactory)").
func (b *Builder) WithProvider(providerFn func() (Transport, error)) *Builder {
	b.provider = providerFn
	return b
}

func (b *Builder) validate() error {
	seen := make(map[string]bool)
	var walk func(*Builder) error
	walk = func(cur *Builder) error {
		if seen[cur.settings.Name] {
			return ErrConfiguration(fmt.Sprintf("child bus name %q declared more than once", cur.settings.Name), nil)
		}
		seen[cur.settings.Name] = true

		byType := make(map[reflect.Type]bool)
		for _, ps := range cur.settings.Producers {
			if byType[ps.MessageType] {
				return ErrConfiguration(fmt.Sprintf("producer for type %s declared more than once", ps.MessageType), nil)
			}
			byType[ps.MessageType] = true
		}
		for _, cs := range cur.settings.Consumers {
			if cs.IsHandler && cs.ResponseType == nil {
				return ErrConfiguration(fmt.Sprintf("handler for type %s declared without a response type", cs.MessageType), nil)
			}
			if cs.IsHandler && cs.HandlerFactory == nil {
				return ErrConfiguration(fmt.Sprintf("handler for type %s declared without a factory", cs.MessageType), nil)
			}
			if !cs.IsHandler && cs.ConsumerFactory == nil {
				return ErrConfiguration(fmt.Sprintf("consumer for type %s declared without a factory", cs.MessageType), nil)
			}
		}
		if err := checkPolymorphicProducerTies(cur.settings); err != nil {
			return err
		}
		for _, child := range cur.children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(b)
}

// checkPolymorphicProducerTies rejects ambiguous polymorphic producer sets
// (orig §4.1, §8 invariant "ties between equally-specific candidates are a
// configuration error detected at build time"). Two distinct polymorphic
// producer declarations A and B tie when neither is an ancestor of the
// other but some other message type already declared on this bus (as a
// producer or a consumer) descends from both — resolveProducer would then
// have no principled way to prefer A over B for that type.
func checkPolymorphicProducerTies(s BusSettings) error {
	var poly []reflect.Type
	declared := make(map[reflect.Type]bool)
	for _, ps := range s.Producers {
		declared[ps.MessageType] = true
		if ps.Polymorphic {
			poly = append(poly, ps.MessageType)
		}
	}
	for _, cs := range s.Consumers {
		declared[cs.MessageType] = true
	}

	for i := 0; i < len(poly); i++ {
		for j := i + 1; j < len(poly); j++ {
			a, b := poly[i], poly[j]
			if isAncestor(a, b) || isAncestor(b, a) {
				continue
			}
			for x := range declared {
				if x == a || x == b {
					continue
				}
				if isAncestor(a, x) && isAncestor(b, x) {
					return ErrConfiguration(fmt.Sprintf(
						"type %s has two equally-specific polymorphic producer candidates %s and %s",
						x, a, b), nil)
				}
			}
		}
	}
	return nil
}

// Build merges parent settings into this builder (if it has a parent),
// validates, and constructs the Bus against transport. If WithProvider was
// used instead, pass a nil transport and the provider's Transport is used.
func (b *Builder) Build(transport Transport) (*Bus, error) {
	if b.parent != nil {
		b.settings.MergeFrom(&b.parent.settings)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}

	if transport == nil && b.provider != nil {
		t, err := b.provider()
		if err != nil {
			return nil, ErrConfiguration("provider failed to construct a transport", err)
		}
		transport = t
	}
	if transport == nil {
		return nil, ErrConfiguration("Build requires a non-nil Transport (supply one or call WithProvider)", nil)
	}

	settings := b.settings
	return newBus(&settings, transport)
}
