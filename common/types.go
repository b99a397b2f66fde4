/*
Copyright 2019 The edgeOn Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

   http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package common

const (
	//RequestSuccessCode sucess
	RequestSuccessCode = 200
	//NoContentCode accepted without body.
	NoContentCode = 204
	//BadRequestCode bad request
	BadRequestCode = 400
	//NotFoundCode twin or method not found
	NotFoundCode = 404
	//ConflictCode version conflict
	ConflictCode = 409
	//InternalErrorCode server internal error
	InternalErrorCode = 500
	//NotImplementedCode no handler for the method.
	NotImplementedCode = 501

	//twin's verb
	MTWIN_OPS_GET      = "Get"
	MTWIN_OPS_UPDATE   = "Update"
	MTWIN_OPS_RESPONSE = "Response"
	MTWIN_OPS_SYNC     = "Sync"
	MTWIN_OPS_PUBLISH  = "Publish"
	MTWIN_OPS_CALL     = "Call"

	// Resource
	MTWIN_RESOURCE_TWIN     = "twin"
	MTWIN_RESOURCE_DESIRED  = "twin/desired"
	MTWIN_RESOURCE_REPORTED = "twin/reported"
	MTWIN_RESOURCE_EVENT    = "event"
	MTWIN_RESOURCE_INPUT    = "input"
	MTWIN_RESOURCE_METHOD   = "method"

	HubModuleName  = "edge/hub"
	CloudName      = "cloud"
	EdgeAppName    = "edge/app"
	TwinModuleName = "edge/mtwin"
)
