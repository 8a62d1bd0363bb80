package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/content-service-backend/config"
	"github.com/ruteri/content-service-backend/interfaces"
)

const (
	soapEnvelopeNS    = "http://schemas.xmlsoap.org/soap/envelope/"
	soapDefaultRootID = "root"
)

type soapEnvelope struct {
	XMLName xml.Name    `xml:"soap:Envelope"`
	SoapNS  string      `xml:"xmlns:soap,attr"`
	Header  *soapHeader `xml:"soap:Header,omitempty"`
	Body    soapBody    `xml:"soap:Body"`
}

type soapHeader struct {
	Security *wsSecurity
}

type wsSecurity struct {
	XMLName       xml.Name `xml:"http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd Security"`
	UsernameToken struct {
		Username string `xml:"Username"`
		Password string `xml:"Password"`
	} `xml:"UsernameToken"`
}

type soapBody struct {
	Content any
}

type soapResponseEnvelope struct {
	Body struct {
		Fault *soapFault `xml:"Fault"`
		Inner []byte     `xml:",innerxml"`
	} `xml:"Body"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

type getChildByNameRequest struct {
	XMLName      xml.Name `xml:"http://docs.oasis-open.org/ns/cmis/messaging/200908/ getChildByName"`
	RepositoryID string   `xml:"repositoryId"`
	FolderID     string   `xml:"folderId"`
	Name         string   `xml:"name"`
}

type createFolderRequest struct {
	XMLName      xml.Name `xml:"http://docs.oasis-open.org/ns/cmis/messaging/200908/ createFolder"`
	RepositoryID string   `xml:"repositoryId"`
	FolderID     string   `xml:"folderId"`
	Name         string   `xml:"name"`
}

type createDocumentRequest struct {
	XMLName      xml.Name `xml:"http://docs.oasis-open.org/ns/cmis/messaging/200908/ createDocument"`
	RepositoryID string   `xml:"repositoryId"`
	FolderID     string   `xml:"folderId"`
	Name         string   `xml:"name"`
	MimeType     string   `xml:"contentStream>mimeType"`
	Length       int64    `xml:"contentStream>length"`
	Stream       string   `xml:"contentStream>stream"`
}

type getContentStreamRequest struct {
	XMLName      xml.Name `xml:"http://docs.oasis-open.org/ns/cmis/messaging/200908/ getContentStream"`
	RepositoryID string   `xml:"repositoryId"`
	ObjectID     string   `xml:"objectId"`
}

type deleteTreeRequest struct {
	XMLName      xml.Name `xml:"http://docs.oasis-open.org/ns/cmis/messaging/200908/ deleteTree"`
	RepositoryID string   `xml:"repositoryId"`
	FolderID     string   `xml:"folderId"`
}

type objectIDResponse struct {
	ObjectID string `xml:"objectId"`
}

type contentStreamResponse struct {
	MimeType string `xml:"contentStream>mimeType"`
	Length   int64  `xml:"contentStream>length"`
	Stream   string `xml:"contentStream>stream"`
}

// SOAPProvider stores content in a remote repository reached through a SOAP
// envelope API. Content travels base64 encoded inside the envelope.
type SOAPProvider struct {
	tag            string
	endpoint       string
	repositoryID   string
	rootFolderID   string
	collectionRoot string
	user           string
	password       string

	client   *http.Client
	resolver *pathResolver
	log      *slog.Logger
}

var _ interfaces.StorageProvider = (*SOAPProvider)(nil)

func NewSOAPProvider(log *slog.Logger) *SOAPProvider {
	return &SOAPProvider{log: log}
}

func (p *SOAPProvider) Bind(ctx context.Context, binding interfaces.StorageBinding, pathCache interfaces.PathCachePartition, client *http.Client) error {
	endpoint, err := config.RequiredString(binding, "endpoint")
	if err != nil {
		return err
	}
	if u, err := url.Parse(endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: binding %q endpoint %q is not an absolute URL", interfaces.ErrConfiguration, binding.Tag, endpoint)
	}
	if p.collectionRoot, err = config.RequiredString(binding, "collectionRoot"); err != nil {
		return err
	}
	if p.repositoryID, err = config.RequiredString(binding, "repositoryId"); err != nil {
		return err
	}
	if p.rootFolderID, err = config.OptionalString(binding, "rootFolderId", soapDefaultRootID); err != nil {
		return err
	}
	if p.user, err = config.OptionalString(binding, "user", ""); err != nil {
		return err
	}
	if p.password, err = config.OptionalString(binding, "password", ""); err != nil {
		return err
	}
	if pathCache == nil {
		return fmt.Errorf("%w: binding %q needs a path cache", interfaces.ErrConfiguration, binding.Tag)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	p.tag = binding.Tag
	p.endpoint = endpoint
	p.client = client
	p.resolver = &pathResolver{rootID: p.rootFolderID, api: p, cache: pathCache, log: p.log}
	return nil
}

func (p *SOAPProvider) Type() string { return "soap" }

func (p *SOAPProvider) Tag() string { return p.tag }

// call posts one operation envelope and decodes the response body into out.
// A SOAP fault is returned as a storage error.
func (p *SOAPProvider) call(ctx context.Context, action string, request any, out any) error {
	env := soapEnvelope{SoapNS: soapEnvelopeNS, Body: soapBody{Content: request}}
	if p.user != "" {
		sec := &wsSecurity{}
		sec.UsernameToken.Username = p.user
		sec.UsernameToken.Password = p.password
		env.Header = &soapHeader{Security: sec}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(env); err != nil {
		return interfaces.NewStorageError(http.StatusInternalServerError, "failed to encode "+action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &buf)
	if err != nil {
		return interfaces.NewStorageError(http.StatusInternalServerError, "failed to build "+action, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", action)

	resp, err := p.client.Do(req)
	if err != nil {
		return interfaces.NewStorageError(http.StatusBadGateway, action+" failed", err)
	}
	defer resp.Body.Close()

	var decoded soapResponseEnvelope
	if err := xml.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return statusError(resp.StatusCode, action)
		}
		return interfaces.NewStorageError(http.StatusBadGateway, "invalid "+action+" response", err)
	}
	if f := decoded.Body.Fault; f != nil {
		return soapFaultError(action, f)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, action)
	}
	if out == nil {
		return nil
	}
	if err := xml.Unmarshal(decoded.Body.Inner, out); err != nil {
		return interfaces.NewStorageError(http.StatusBadGateway, "invalid "+action+" response", err)
	}
	return nil
}

func soapFaultError(action string, f *soapFault) error {
	msg := fmt.Sprintf("%s fault %s: %s", action, f.Code, f.String)
	switch {
	case strings.Contains(f.String, "objectNotFound"):
		return interfaces.NewStorageError(http.StatusNotFound, msg, interfaces.ErrNotFound)
	case strings.Contains(f.String, "nameConstraintViolation"):
		return interfaces.NewStorageError(http.StatusConflict, msg, interfaces.ErrAlreadyExists)
	default:
		return interfaces.NewStorageError(http.StatusBadGateway, msg, nil)
	}
}

// LookupChild implements nodeAPI.
func (p *SOAPProvider) LookupChild(ctx context.Context, parentID, name string) (string, bool, error) {
	var out objectIDResponse
	err := p.call(ctx, "getChildByName", &getChildByNameRequest{RepositoryID: p.repositoryID, FolderID: parentID, Name: name}, &out)
	if errors.Is(err, interfaces.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return out.ObjectID, out.ObjectID != "", nil
}

// CreateFolder implements nodeAPI.
func (p *SOAPProvider) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	var out objectIDResponse
	err := p.call(ctx, "createFolder", &createFolderRequest{RepositoryID: p.repositoryID, FolderID: parentID, Name: name}, &out)
	if err != nil {
		return "", err
	}
	if out.ObjectID == "" {
		return "", interfaces.NewStorageError(http.StatusBadGateway, "createFolder returned no objectId", nil)
	}
	return out.ObjectID, nil
}

func (p *SOAPProvider) CreateCollection(ctx context.Context, c *interfaces.Collection) (*interfaces.StorageOperationResult, error) {
	remotePath := CollectionPath(p.collectionRoot, c.ID)
	id, err := p.resolver.CreatePath(ctx, remotePath)
	if err != nil {
		return nil, err
	}
	props := baseProperties(p.Type())
	props[PropPath] = interfaces.StringValue(remotePath)
	props[PropNodeID] = interfaces.StringValue(id)
	return okResult(props), nil
}

func (p *SOAPProvider) CreateItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion, content io.Reader) (*interfaces.StorageOperationResult, error) {
	folderID, err := p.resolver.CreatePath(ctx, ItemPath(p.collectionRoot, c.ID, item.ID))
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, interfaces.NewStorageError(http.StatusInternalServerError, "failed to read content", err)
	}

	mimeType := v.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	var out objectIDResponse
	err = p.call(ctx, "createDocument", &createDocumentRequest{
		RepositoryID: p.repositoryID,
		FolderID:     folderID,
		Name:         v.VersionLabel(),
		MimeType:     mimeType,
		Length:       int64(len(data)),
		Stream:       base64.StdEncoding.EncodeToString(data),
	}, &out)
	if err != nil {
		return nil, err
	}

	p.log.Debug("Stored item version",
		slog.String("tag", p.tag),
		slog.String("objectId", out.ObjectID),
		slog.Int("size", len(data)))

	props := baseProperties(p.Type())
	props[PropPath] = interfaces.StringValue(VersionPath(p.collectionRoot, c.ID, item.ID, v, false))
	props[PropNodeID] = interfaces.StringValue(out.ObjectID)
	props[PropSize] = interfaces.NumberValue(float64(len(data)))
	props[PropContentType] = interfaces.StringValue(mimeType)
	res := okResult(props)
	res.Size = int64(len(data))
	return res, nil
}

func (p *SOAPProvider) ReadItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion) (*interfaces.StorageOperationResult, error) {
	folderID, err := p.resolver.LookupPath(ctx, ItemPath(p.collectionRoot, c.ID, item.ID))
	if err != nil {
		return nil, err
	}
	docID, found, err := p.LookupChild(ctx, folderID, v.VersionLabel())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notFound("version %s of item %s does not exist", v.VersionLabel(), item.ID)
	}

	var out contentStreamResponse
	if err := p.call(ctx, "getContentStream", &getContentStreamRequest{RepositoryID: p.repositoryID, ObjectID: docID}, &out); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(out.Stream)
	if err != nil {
		return nil, interfaces.NewStorageError(http.StatusBadGateway, "invalid content stream encoding", err)
	}

	res := okResult(map[string]interfaces.PropertyValue{
		PropNodeID:      interfaces.StringValue(docID),
		PropContentType: interfaces.StringValue(out.MimeType),
	})
	res.Stream = io.NopCloser(bytes.NewReader(data))
	res.Size = int64(len(data))
	return res, nil
}

func (p *SOAPProvider) DeleteItem(ctx context.Context, c *interfaces.Collection, item *interfaces.Item) (*interfaces.StorageOperationResult, error) {
	itemPath := ItemPath(p.collectionRoot, c.ID, item.ID)
	folderID, err := p.resolver.LookupPath(ctx, itemPath)
	if errors.Is(err, interfaces.ErrNotFound) {
		return okResult(nil), nil
	}
	if err != nil {
		return nil, err
	}
	if err := p.call(ctx, "deleteTree", &deleteTreeRequest{RepositoryID: p.repositoryID, FolderID: folderID}, nil); err != nil {
		return nil, err
	}
	if err := p.resolver.Forget(ctx, itemPath); err != nil {
		p.log.Warn("Failed to forget cached item path", slog.String("path", itemPath), "err", err)
	}
	return okResult(nil), nil
}
