package http

import (
	"encoding/base64"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/core/usecases"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	geoPointInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "GeoPointInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"lat": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"lon": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	projectType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Project",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.String},
			"owner_id":  &graphql.Field{Type: graphql.String},
			"name":      &graphql.Field{Type: graphql.String},
			"public":    &graphql.Field{Type: graphql.Boolean},
			"pin_count": &graphql.Field{Type: graphql.Int},
		},
	})

	pinType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Pin",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"project_id": &graphql.Field{Type: graphql.String},
			"name":       &graphql.Field{Type: graphql.String},
			"location":   &graphql.Field{Type: geoPointType},
			"tags":       &graphql.Field{Type: graphql.NewList(graphql.String)},
			"photos":     &graphql.Field{Type: graphql.NewList(graphql.String)},
			"distance":   &graphql.Field{Type: graphql.Float},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"pinsInBounds": &graphql.Field{
				Type:        graphql.NewList(pinType),
				Description: "Pins inside a bounding box, optionally tag-filtered",
				Args: graphql.FieldConfigArgument{
					"north":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"south":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"east":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"west":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"project_id": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"tags":       &graphql.ArgumentConfig{Type: graphql.NewList(graphql.String)},
					"limit":      &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 200},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					box := domain.BoundingBox{
						North: p.Args["north"].(float64),
						South: p.Args["south"].(float64),
						East:  p.Args["east"].(float64),
						West:  p.Args["west"].(float64),
					}
					return deps.Pins.FindInBounds(p.Context, box,
						p.Args["project_id"].(string), stringList(p.Args["tags"]), p.Args["limit"].(int))
				},
			},
			"pinsByProject": &graphql.Field{
				Type:        graphql.NewList(pinType),
				Description: "Every pin in a project",
				Args: graphql.FieldConfigArgument{
					"project_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"tags":       &graphql.ArgumentConfig{Type: graphql.NewList(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pins, err := deps.Pins.ListByProject(p.Context, p.Args["project_id"].(string))
					if err != nil {
						return nil, err
					}
					return domain.FilterByTags(pins, stringList(p.Args["tags"])), nil
				},
			},
			"pin": &graphql.Field{
				Type:        pinType,
				Description: "Get a pin by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Pins.GetByID(p.Context, p.Args["id"].(string))
				},
			},
			"pinsNearby": &graphql.Field{
				Type:        graphql.NewList(pinType),
				Description: "Pins near a location, closest first",
				Args: graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 500.0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Pins.FindNearby(p.Context,
						p.Args["lat"].(float64), p.Args["lon"].(float64),
						p.Args["radius"].(float64), p.Args["limit"].(int))
				},
			},
			"projectsForUser": &graphql.Field{
				Type:        graphql.NewList(projectType),
				Description: "Projects owned by a user",
				Args: graphql.FieldConfigArgument{
					"owner_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Projects.ListByOwner(p.Context, p.Args["owner_id"].(string))
				},
			},
			"projectTags": &graphql.Field{
				Type:        graphql.NewList(graphql.String),
				Description: "Sorted unique tags used in a project",
				Args: graphql.FieldConfigArgument{
					"project_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Pins.ProjectTags(p.Context, p.Args["project_id"].(string))
				},
			},
		},
	})

	photoInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "PhotoInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"name": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"data": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)}, // base64
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createPin": &graphql.Field{
				Type:        pinType,
				Description: "Upload photos and create a pin",
				Args: graphql.FieldConfigArgument{
					"project_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"name":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"location":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(geoPointInput)},
					"tags":       &graphql.ArgumentConfig{Type: graphql.NewList(graphql.String)},
					"photos":     &graphql.ArgumentConfig{Type: graphql.NewList(photoInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					loc := p.Args["location"].(map[string]interface{})
					return deps.Pipeline.Create(p.Context, usecases.CreatePinInput{
						ProjectID: p.Args["project_id"].(string),
						Name:      p.Args["name"].(string),
						Location:  domain.GeoPoint{Lat: loc["lat"].(float64), Lon: loc["lon"].(float64)},
						Tags:      stringList(p.Args["tags"]),
						Photos:    photoUploads(p.Args["photos"]),
					})
				},
			},
			"updatePin": &graphql.Field{
				Type:        pinType,
				Description: "Upload new photos and update a pin",
				Args: graphql.FieldConfigArgument{
					"id":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"name":     &graphql.ArgumentConfig{Type: graphql.String},
					"location": &graphql.ArgumentConfig{Type: geoPointInput},
					"tags":     &graphql.ArgumentConfig{Type: graphql.NewList(graphql.String)},
					"photos":   &graphql.ArgumentConfig{Type: graphql.NewList(photoInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					input := usecases.UpdatePinInput{
						PinID:  p.Args["id"].(string),
						Tags:   stringList(p.Args["tags"]),
						Photos: photoUploads(p.Args["photos"]),
					}
					if name, ok := p.Args["name"].(string); ok {
						input.Name = &name
					}
					if raw, ok := p.Args["location"].(map[string]interface{}); ok {
						loc := domain.GeoPoint{Lat: raw["lat"].(float64), Lon: raw["lon"].(float64)}
						input.Location = &loc
					}
					return deps.Pipeline.Update(p.Context, input)
				},
			},
			"addNote": &graphql.Field{
				Type: graphql.NewObject(graphql.ObjectConfig{
					Name: "Note",
					Fields: graphql.Fields{
						"id":     &graphql.Field{Type: graphql.String},
						"pin_id": &graphql.Field{Type: graphql.String},
						"text":   &graphql.Field{Type: graphql.String},
					},
				}),
				Description: "Append a note to a pin",
				Args: graphql.FieldConfigArgument{
					"pin_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"text":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Pins.AddNote(p.Context, p.Args["pin_id"].(string), p.Args["text"].(string))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// stringList converts a GraphQL list argument to []string.
func stringList(raw interface{}) []string {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// photoUploads converts PhotoInput arguments, decoding base64 payloads.
func photoUploads(raw interface{}) []usecases.PhotoUpload {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	var out []usecases.PhotoUpload
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		encoded, _ := m["data"].(string)
		data, err := decodeBase64(encoded)
		if err != nil {
			continue
		}
		out = append(out, usecases.PhotoUpload{Name: name, Data: data})
	}
	return out
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		start := time.Now()
		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})
		c.Set("X-Query-Time", time.Since(start).String())

		return c.JSON(result)
	}
}
