/*
Package clients provides a client library for the content service API.

ContentClient wraps every endpoint of the httpserver package. Non-2xx
responses are returned as *ResponseError carrying the decoded
api.ErrorResponse, so interfaces.StatusHint works on client errors too.

# Example Usage

	client := clients.NewContentClient("https://content.example.com")

	details, err := client.CreateCollection(ctx, manager.CreateCollectionCommand{
	    Name:        "Invoices",
	    ProviderTag: "archive",
	})

	item, err := client.AddItem(ctx, details.Collection.ID, manager.AddItemCommand{
	    Name:       "inv-001.pdf",
	    MimeType:   "application/pdf",
	    Properties: map[string]any{"Year": 2024},
	}, file)

	stream, err := client.ReadItemVersion(ctx, details.Collection.ID, item.Item.ID, 0, 0)
	defer stream.Close()
*/
package clients
