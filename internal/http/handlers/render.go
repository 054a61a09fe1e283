package handlers

import "github.com/gofiber/fiber/v2"

// render draws an HTML view, falling back to JSON when no template engine
// is configured or the view is missing.
func render(c *fiber.Ctx, tmpl string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	if rid, ok := c.Locals("requestid").(string); ok {
		data["RequestID"] = rid
	}
	if err := c.Render(tmpl, data); err != nil {
		return c.JSON(data)
	}
	return nil
}
