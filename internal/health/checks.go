package health

import "fmt"

// RouteTableCheck reports unhealthy when the route table is empty. count
// is called on every readiness probe.
func RouteTableCheck(count func() int) CheckFunc {
	return func() Check {
		n := count()
		if n == 0 {
			return Check{Status: StatusUnhealthy, Message: "no routes configured"}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("%d routes configured", n)}
	}
}
