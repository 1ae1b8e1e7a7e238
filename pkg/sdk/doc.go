// Package casestore provides an embedded Go client for the case-record
// data layer: the same schema registry, validation and store backends
// the HTTP service uses, without the HTTP hop.
//
//	client, _ := casestore.New(ctx, casestore.WithMemory())
//	defer client.Close(ctx)
//
//	_, _ = client.Schema().RegisterField("variantOfConcern", "string")
//	c, _ := client.Cases().Create(ctx, map[string]any{
//	    "confirmationDate": "2020-03-01",
//	    "caseReference":    map[string]any{"sourceId": "who-report"},
//	    "variantOfConcern": "B.1.1.7",
//	})
//
// For durable storage point the client at MongoDB:
//
//	client, _ := casestore.New(ctx,
//	    casestore.WithMongo("mongodb://localhost:27017", "casestore", "cases"),
//	    casestore.WithGeocoder("http://localhost:8090"),
//	)
package casestore
