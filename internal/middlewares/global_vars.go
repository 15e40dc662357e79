package middlewares

import "github.com/gofiber/fiber/v2"

// InjectGlobalVars puts site-wide values (siteName, baseURL) into request
// locals. Combined with PassLocalsToViews they reach every template.
func InjectGlobalVars(vars fiber.Map) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for key, val := range vars {
			c.Locals(key, val)
		}
		return c.Next()
	}
}
