package market

import "context"

// Default redirect targets, matching the client application's routes.
const (
	DefaultLoginRoute  = "/login"
	DefaultUpsellRoute = "/subscribe"
)

// Decide is the route-guard state machine over two binary inputs. It is a
// pure function of a single snapshot of each input, so a decision is stable
// for the duration of one navigation attempt.
//
// Outcomes:
//   - not authenticated, route requires auth: redirect to login, deny
//   - authenticated, route does not require premium: allow
//   - authenticated, route requires premium, not premium: redirect to upsell, deny
//   - authenticated and premium: allow
//
// The dashboard is a plain authenticated route: it carries RequiresAuth only,
// so it is exempt from the premium check. Premium gates only the routes that
// explicitly require it (price updates).
func Decide(authenticated, premium bool, route Route, loginRoute, upsellRoute string) Decision {
	if route.RequiresAuth && !authenticated {
		return Decision{Allow: false, Redirect: loginRoute}
	}
	if route.RequiresPremium {
		if !authenticated {
			return Decision{Allow: false, Redirect: loginRoute}
		}
		if !premium {
			return Decision{Allow: false, Redirect: upsellRoute}
		}
	}
	return Decision{Allow: true}
}

// Guard evaluates navigation attempts against the auth gateway and the
// entitlement resolver. Each evaluation takes one snapshot of each stream.
type Guard struct {
	gateway  *Gateway
	resolver *Resolver

	// LoginRoute and UpsellRoute override the deny redirect targets.
	LoginRoute  string
	UpsellRoute string
}

// NewGuard creates a guard with the default redirect targets.
func NewGuard(gateway *Gateway, resolver *Resolver) *Guard {
	return &Guard{
		gateway:     gateway,
		resolver:    resolver,
		LoginRoute:  DefaultLoginRoute,
		UpsellRoute: DefaultUpsellRoute,
	}
}

// CanActivate decides one navigation attempt.
func (g *Guard) CanActivate(ctx context.Context, route Route) Decision {
	user := g.gateway.Current()
	authenticated := user != nil

	premium := false
	if authenticated && route.RequiresPremium {
		// Resolve against storage rather than trusting the cached stream
		// value: the webhook may have flipped the flag since last emission.
		premium = g.resolver.Resolve(ctx, user.UID)
	}

	return Decide(authenticated, premium, route, g.LoginRoute, g.UpsellRoute)
}

// CanActivateUser decides for an explicit caller identity, as used by the
// server-side middleware adapters where identity arrives per request.
func (g *Guard) CanActivateUser(ctx context.Context, user *User, route Route) Decision {
	authenticated := user != nil
	premium := false
	if authenticated && route.RequiresPremium {
		premium = g.resolver.Resolve(ctx, user.UID)
	}
	return Decide(authenticated, premium, route, g.LoginRoute, g.UpsellRoute)
}
