/*
Package servicemesh provides service mesh components for microservices.

Subpackages:

  - circuitbreaker: Circuit breaker pattern implementation, used by
    pkg/resilience to protect outbound transport calls.

Usage:

	import "github.com/chris-alexander-pop/busrt/pkg/servicemesh/circuitbreaker"

	cb := circuitbreaker.New("orders-transport", circuitbreaker.Options{FailureThreshold: 5})
	result, err := cb.Execute(func() (interface{}, error) { return nil, doWork() })
*/
package servicemesh
